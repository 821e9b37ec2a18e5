package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dinh2350/lunar/internal/config"
	"github.com/spf13/cobra"
)

// buildDoctorCmd replaces the old internal/security audit package: a much
// smaller environment sanity check rather than a standalone report type.
func buildDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "check the configuration and workspace for common problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.OutOrStdout(), *cfgPath)
		},
	}
}

func runDoctor(out io.Writer, cfgPath string) error {
	report := func(ok bool, format string, args ...any) {
		status := "ok  "
		if !ok {
			status = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %s\n", status, fmt.Sprintf(format, args...))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		report(false, "load config %s: %v", cfgPath, err)
		return err
	}
	report(true, "config %s loaded and validated", cfgPath)

	checkWritableDir(report, "workspace", cfg.Server.Workspace)
	checkWritableDir(report, "data dir", cfg.Server.DataDir)

	switch cfg.LLM.Provider {
	case "anthropic":
		report(cfg.LLM.AnthropicKey != "", "anthropic_api_key is set")
	case "openai":
		report(cfg.LLM.OpenAIKey != "", "openai_api_key is set")
	}
	if cfg.Channels.Telegram.Enabled {
		report(cfg.Channels.Telegram.Token != "", "telegram token is set")
	}
	return nil
}

func checkWritableDir(report func(bool, string, ...any), label, path string) {
	if path == "" {
		report(false, "%s path is empty", label)
		return
	}
	probe := filepath.Join(path, ".lunar-doctor-probe")
	if err := os.MkdirAll(path, 0o755); err != nil {
		report(false, "%s %s: %v", label, path, err)
		return
	}
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		report(false, "%s %s is not writable: %v", label, path, err)
		return
	}
	os.Remove(probe)
	report(true, "%s %s is writable", label, path)
}
