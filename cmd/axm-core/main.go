// Command axm-core is the Vault's CLI: mount a shard, run queries
// against it, verify its integrity, and print its statistics.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	ctx := context.Background()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		zerolog.Ctx(ctx).Debug().Msgf(format, args...)
	}))
	defer undo()

	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("axm-core: failed to set GOMAXPROCS")
	}

	cmd := newCommand()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "axm-core:", err)
		os.Exit(1)
	}
}
