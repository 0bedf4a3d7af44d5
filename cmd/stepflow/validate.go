package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/stepflow/pkg/schema"
	"github.com/dukex/stepflow/pkg/validation"
	"github.com/urfave/cli/v3"
)

var (
	ErrNoFiles          = errors.New("at least one definition file is required")
	ErrInvalidDocuments = errors.New("one or more definitions have validation errors")
)

// NewValidateCommand checks definition documents against the schema and the
// graph rules. Warnings are printed but only errors fail the command.
func NewValidateCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate workflow definition documents",
		ArgsUsage: "<file.json>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat warnings as errors",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			files := command.Args().Slice()
			if len(files) == 0 {
				return ErrNoFiles
			}

			failed := 0

			for _, file := range files {
				if !validateFile(out, file, command.Bool("strict")) {
					failed++
				}
			}

			_, _ = fmt.Fprintf(out, "\n%d file(s) checked, %d failed\n", len(files), failed)

			if failed > 0 {
				return ErrInvalidDocuments
			}

			return nil
		},
	}
}

func validateFile(out io.Writer, path string, strict bool) bool {
	_, _ = fmt.Fprintf(out, "%s\n", path)

	document, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(out, "  cannot read: %v\n", err)

		return false
	}

	def, err := schema.DecodeDefinition(document)
	if err != nil {
		var docErr *schema.DocumentError
		if errors.As(err, &docErr) {
			for _, problem := range docErr.Problems {
				_, _ = fmt.Fprintf(out, "  [schema] %s\n", problem)
			}
		} else {
			_, _ = fmt.Fprintf(out, "  %v\n", err)
		}

		return false
	}

	report := validation.Validate(def)
	for _, finding := range report.Findings {
		_, _ = fmt.Fprintf(out, "  %s\n", finding)
	}

	if len(report.Findings) == 0 {
		_, _ = fmt.Fprintln(out, "  ok")
	}

	if strict {
		return len(report.Findings) == 0
	}

	return report.CanPublish()
}
