package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lorenzotomasdiez/negotiator/internal/config"
	"github.com/lorenzotomasdiez/negotiator/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "negotiator",
		Short:         "Two-agent LLM negotiation engine",
		Long:          "Runs a scripted three-round negotiation between two model-backed agents, streams it as it happens, and summarizes the outcome.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Path to a TOML config file")
	root.PersistentFlags().String("env-file", ".env", "Path to a .env file (missing file is ignored)")
	root.PersistentFlags().String("api-key", "", "Model API key (overrides LLM_API_KEY env var)")
	root.PersistentFlags().String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newSummarizeCmd())
	return root
}

// loadConfig resolves configuration from .env, the config file, the
// environment and finally the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	envFile, _ := flags.GetString("env-file")
	path, _ := flags.GetString("config")
	apiKey, _ := flags.GetString("api-key")
	level, _ := flags.GetString("log-level")

	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	if apiKey != "" {
		os.Setenv("LLM_API_KEY", apiKey)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level != "" {
		cfg.LogLevel = level
	}
	return cfg, logging.New(cmd.ErrOrStderr(), cfg.LogLevel), nil
}
