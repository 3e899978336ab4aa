package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// runChallengeProcess spawns the challenge verifier with inherited stdio
// so the operator interacts with it directly on the gate's terminal. The
// call is synchronous: no FIFO events are serviced while it runs, which
// keeps tamper handling total-order.
//
// Exit code 0 is the only pass. A non-zero exit, a spawn failure, or an
// expired timeout are all a failed challenge: the gate fails closed.
func runChallengeProcess(binary string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, binary)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			log.Warn().
				Str("binary", binary).
				Err(err).
				Msg("Challenge verifier did not pass")
			return err
		}
		return nil
	}
}
