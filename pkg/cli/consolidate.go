package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/urfave/cli/v3"
)

func consolidateCommand() *cli.Command {
	cfg := &config{}
	var method string

	return &cli.Command{
		Name:      "consolidate",
		Usage:     "Fold episodic memories into one derived semantic unit",
		ArgsUsage: "<memory-id>...",
		Flags: append(globalFlags(cfg),
			&cli.StringFlag{
				Name:        "method",
				Aliases:     []string{"m"},
				Usage:       "Consolidation method (pattern_extraction, lesson_learning, outcome_analysis, general)",
				Destination: &method,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			args := c.Args().Slice()
			if len(args) < 2 {
				return goerr.New("at least two memory ids are required")
			}
			ids := make([]model.MemoryID, 0, len(args))
			for _, a := range args {
				ids = append(ids, model.MemoryID(a))
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			result, err := eng.ConsolidateMemories(ctx, ids, model.ConsolidationMethod(method))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
