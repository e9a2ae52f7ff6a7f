package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/k1tz03/Forkfall/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "forkfall",
		Short:         "Forkfall feed engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	root.AddCommand(newServeCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newAccessLog(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Logging.Production {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
