package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

func rebuildCommand() *cli.Command {
	cfg := &config{}

	return &cli.Command{
		Name:  "rebuild",
		Usage: "Rebuild all indexes from the persisted memory blobs",
		Flags: globalFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			report, err := eng.RebuildIndexes(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}
