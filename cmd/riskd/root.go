package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"riskd/internal/config"
)

// rootFlags are the command-line overrides, applied after file and env.
type rootFlags struct {
	configPath string
	envFile    string
	addr       string
	mlURL      string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "riskd",
		Short: "Heart-disease risk scoring gateway",
		Long: "riskd accepts clinical feature payloads over HTTP, normalizes them and scores them\n" +
			"through a remote model service (ML_URL) or a local scorer process.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.StringVar(&f.envFile, "env-file", "", "Load environment variables from this dotenv file first")
	pf.StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :5000 (overrides HOST/PORT)")
	pf.StringVar(&f.mlURL, "ml-url", "", "Remote scoring service base URL; empty selects the local scorer")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: json|console")

	root.AddCommand(newConfigCmd(f), newScoreCmd(f))
	return root
}

// loadConfig builds the effective configuration:
// defaults < config file < environment (.env first) < flags.
func loadConfig(cmd *cobra.Command, f *rootFlags) (config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil {
			return config.Config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, fmt.Errorf("environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("ml-url") {
		cfg.MLURL = f.mlURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newConfigCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			b, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
