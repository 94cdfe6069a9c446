package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ayusman/drishti/internal/config"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
	"github.com/ayusman/drishti/internal/store"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "drishti",
	Short: "Face attendance kiosk with liveness checks",
	Long: `Drishti watches a camera for people stepping up, checks that the face
in front of it is live (blinks, head movement, no photo or screen replay),
matches it against enrolled students and records attendance.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logging.Set(logger)
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Liveness:  cfg.Liveness,
		Threshold: cfg.Matching.Threshold,
		Timeout:   cfg.Session.Timeout,
	}
}

func serviceConfig(sc config.ServiceConfig) detector.Config {
	return detector.Config{
		Script:         sc.Script,
		Python:         sc.Python,
		IdleTimeout:    sc.IdleTimeout,
		RequestTimeout: sc.RequestTimeout,
	}
}
