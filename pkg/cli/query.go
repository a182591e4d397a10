package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	cfg := &config{}
	var queryType, owner, skills string

	return &cli.Command{
		Name:      "query",
		Usage:     "Retrieve fused knowledge for a question",
		ArgsUsage: "<question>",
		Flags: append(globalFlags(cfg),
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "Query type (decision, learning, execution, general)",
				Value:       string(model.QueryGeneral),
				Destination: &queryType,
			},
			&cli.StringFlag{
				Name:        "owner",
				Usage:       "Restrict results to one owner",
				Destination: &owner,
			},
			&cli.StringFlag{
				Name:        "skills",
				Usage:       "Comma-separated required skills",
				Destination: &skills,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("a question is required")
			}

			q := &model.RetrievalQuery{
				QueryType:   model.QueryType(queryType),
				Description: question,
				Owner:       owner,
			}
			if skills != "" {
				q.RequiredSkills = strings.Split(skills, ",")
			}

			eng, ctx, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			answer, err := eng.RetrieveKnowledge(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(answer)
		},
	}
}
