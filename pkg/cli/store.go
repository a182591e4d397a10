package cli

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/urfave/cli/v3"
)

func storeCommand() *cli.Command {
	cfg := &config{}
	var input string

	return &cli.Command{
		Name:  "store",
		Usage: "Store an experience from JSON input",
		Flags: append(globalFlags(cfg),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "Path to JSON file containing the experience (stdin when omitted)",
				Destination: &input,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := readInput(input)
			if err != nil {
				return err
			}

			var x model.Experience
			if err := json.Unmarshal(data, &x); err != nil {
				return goerr.Wrap(err, "failed to parse experience JSON")
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			result, err := eng.StoreExperience(ctx, &x)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
