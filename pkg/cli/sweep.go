package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

func sweepCommand() *cli.Command {
	cfg := &config{}

	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one maintenance sweep (decay, consolidation, archival, eviction)",
		Flags: globalFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			report, err := eng.RunMaintenance(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}
