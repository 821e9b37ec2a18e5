package main

import (
	"context"
	"os"

	"github.com/dinh2350/lunar/internal/channels/cli"
	"github.com/spf13/cobra"
)

func buildChatCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "start an interactive chat session against the local agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, err := newRuntime(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			repl := cli.NewREPL(rt.loop, rt.router, rt.sessions, rt.cfg.Server.AgentName, os.Stdin, os.Stdout)
			return repl.Run(ctx)
		},
	}
}
