package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func overrideCommand() *cli.Command {
	cfg := &config{}
	var source string

	return &cli.Command{
		Name:      "override",
		Usage:     "Record an authoritative fact correction",
		ArgsUsage: "<topic> <content>",
		Flags: append(globalFlags(cfg),
			&cli.StringFlag{
				Name:        "source",
				Usage:       "Source path attributed to the correction",
				Destination: &source,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			topic, content := c.Args().Get(0), c.Args().Get(1)
			if topic == "" || content == "" {
				return goerr.New("both a topic and content are required")
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			override, err := eng.FactOverride(ctx, topic, content, source)
			if err != nil {
				return err
			}
			return printJSON(override)
		},
	}
}
