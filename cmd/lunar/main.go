// Command lunar runs the lunar conversational agent: a single-agent
// gateway that connects Telegram, an HTTP/WebSocket API, and a local CLI
// to an LLM provider with tool execution and a hybrid-search memory
// index (spec §1).
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "lunar",
		Short:        "lunar conversational agent gateway",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "lunar.yaml", "path to the configuration file")

	root.AddCommand(
		buildServeCmd(&cfgPath),
		buildChatCmd(&cfgPath),
		buildIndexCmd(&cfgPath),
		buildDoctorCmd(&cfgPath),
	)
	return root
}
