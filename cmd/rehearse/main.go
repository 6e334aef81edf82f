package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"alcyxob/present-coach/internal/cli"
	"alcyxob/present-coach/internal/client"
	"alcyxob/present-coach/internal/config"
	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: "console",
		Output: os.Stderr,
	})

	deps := &cli.Dependencies{
		Config: cfg,
		API:    client.NewAPI(cfg.ServerURL, nil),
		In:     os.Stdin,
		Out:    os.Stdout,
	}

	return cli.NewRootCmd(deps).ExecuteContext(context.Background())
}
