package main

import (
	"context"
	"os"

	"github.com/dukex/stepflow/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "stepflow",
		Usage:                 "Work with workflow definition documents",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(os.Stdout),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("stepflow").Error("command failed", "error", err)
		os.Exit(1)
	}
}
