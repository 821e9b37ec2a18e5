package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func buildIndexCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "walk the workspace and refresh the hybrid search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := newRuntime(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.indexer.IndexAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\n", n)
			return nil
		},
	}
}
