package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	cfg := &config{}
	var noCitations bool

	return &cli.Command{
		Name:      "ask",
		Usage:     "Generate a grounded answer from the truth base",
		ArgsUsage: "<question>",
		Flags: append(globalFlags(cfg),
			&cli.BoolFlag{
				Name:        "no-citations",
				Usage:       "Omit citation tags from the context block",
				Destination: &noCitations,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("a question is required")
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			answer, err := eng.AnswerGrounded(ctx, question, !noCitations)
			if err != nil {
				return err
			}
			return printJSON(answer)
		},
	}
}
