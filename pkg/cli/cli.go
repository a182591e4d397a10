package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "llbmem",
		Usage: "Layered memory engine for AI agents",
		Commands: []*cli.Command{
			storeCommand(),
			queryCommand(),
			askCommand(),
			indexCommand(),
			overrideCommand(),
			consolidateCommand(),
			statsCommand(),
			sweepCommand(),
			rebuildCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
