package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func indexCommand() *cli.Command {
	cfg := &config{}
	var section string

	return &cli.Command{
		Name:      "index",
		Usage:     "Index a document into the truth base",
		ArgsUsage: "<path>",
		Flags: append(globalFlags(cfg),
			&cli.StringFlag{
				Name:        "section",
				Aliases:     []string{"s"},
				Usage:       "Section label for the document",
				Destination: &section,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return goerr.New("a document path is required")
			}
			data, err := readInput(path)
			if err != nil {
				return err
			}

			var metadata map[string]string
			if section != "" {
				metadata = map[string]string{"section": section}
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			report, err := eng.IndexDocument(ctx, path, string(data), metadata)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}
