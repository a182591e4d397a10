package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	cfg := &config{}

	return &cli.Command{
		Name:  "stats",
		Usage: "Show memory and truth base statistics",
		Flags: globalFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			return printJSON(eng.Status(ctx))
		},
	}
}
