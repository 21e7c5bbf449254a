package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/legal-code-search/internal/adapters/cli"
	"github.com/kirillkom/legal-code-search/internal/bootstrap"
	"github.com/kirillkom/legal-code-search/internal/config"
	"github.com/kirillkom/legal-code-search/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(ctx context.Context) (*cli.Runtime, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		app, err := bootstrap.New(ctx, cfg, "searchctl", logging.NewCLILogger(cfg.LogLevel))
		if err != nil {
			return nil, err
		}
		return &cli.Runtime{Service: app.Service, Loader: app.Loader, Close: app.Close}, nil
	})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		stop()
		os.Exit(1)
	}
}
