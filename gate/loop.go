package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obsidianworks/tampergate/gate/audit"
)

// errWipeAuthorized is returned by Run after the trigger file is written.
// The process exits non-zero; Wiping never transitions back within the
// same process lifetime.
var errWipeAuthorized = errors.New("wipe authorized")

// idleReopenDelay throttles the loop when the FIFO writer is gone while
// the gate is not armed (no tamper implication, just no sensor yet).
const idleReopenDelay = 250 * time.Millisecond

// Gate is the orchestrator: one goroutine owns the FIFO, the machine and
// the timers. There is no shared mutable state and no locking.
type Gate struct {
	cfg   *Config
	m     *Machine
	trail *audit.Trail

	// challenge runs the verifier and returns nil on pass. Injected so
	// the escalation path is testable without a subprocess.
	challenge func(ctx context.Context) error

	fifo           *eventFIFO
	lastHeartbeat  time.Time
	armingDeadline time.Time
	triggerWritten bool
}

// NewGate wires a gate from config. trail may be nil (audit disabled).
func NewGate(cfg *Config, trail *audit.Trail) *Gate {
	return &Gate{
		cfg:       cfg,
		m:         NewMachine(cfg.AnomalyEscalationCount),
		trail:     trail,
		challenge: runChallengeProcess(cfg.ChallengeBinary),
	}
}

// Run owns the event loop until the context is cancelled or a wipe is
// authorized. Malformed FIFO lines are logged and skipped; the sensor
// link is untrusted but assumed mostly well-formed.
func (g *Gate) Run(ctx context.Context) error {
	fifo, err := openEventFIFO(g.cfg.EventFIFO)
	if err != nil {
		return err
	}
	g.fifo = fifo
	defer g.fifo.Close()

	g.lastHeartbeat = time.Now()

	log.Info().
		Str("fifo", g.cfg.EventFIFO).
		Str("state", g.m.State().String()).
		Msg("Tamper gate listening for sensor events")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lines, eof, err := g.fifo.Wait(g.pollTimeout())
		if err != nil {
			return err
		}
		now := time.Now()

		// Arming timer fires independently of data arrival.
		if g.m.State() == StateArming && !g.armingDeadline.IsZero() && !now.Before(g.armingDeadline) {
			g.apply(InputArmingElapsed)
		}

		for _, line := range lines {
			ev, err := parseEvent(line)
			if err != nil {
				log.Warn().Err(err).Msg("Skipping malformed sensor event")
				continue
			}
			g.record("event", audit.Detail{
				Event:      ev.EventType,
				Lux:        ev.Lux,
				Confidence: ev.Confidence,
			})
			g.apply(inputFor(ev))
			if g.m.State() == StateWiping {
				return errWipeAuthorized
			}
		}

		if eof {
			if g.m.State() == StateArmed {
				// A closed sensor link while armed is tamper.
				log.Warn().Msg("Sensor closed the event fifo while armed")
				g.apply(InputHeartbeatSilence)
			} else {
				time.Sleep(idleReopenDelay)
			}
		} else if len(lines) == 0 && g.m.State() == StateArmed &&
			time.Since(g.lastHeartbeat) >= g.cfg.HeartbeatTimeout() {
			log.Warn().
				Dur("silence", time.Since(g.lastHeartbeat)).
				Msg("Heartbeat silence exceeded timeout while armed")
			g.apply(InputHeartbeatSilence)
		}

		if g.m.State() == StateWiping {
			return errWipeAuthorized
		}
	}
}

// pollTimeout derives the FIFO wait from the current state: the heartbeat
// timeout while armed, twice that otherwise, clamped to the arming
// deadline while arming so the timer fires promptly.
func (g *Gate) pollTimeout() time.Duration {
	timeout := g.cfg.HeartbeatTimeout()
	if g.m.State() != StateArmed {
		timeout = 2 * timeout
	}
	if g.m.State() == StateArming && !g.armingDeadline.IsZero() {
		if remain := time.Until(g.armingDeadline); remain < timeout {
			timeout = remain
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	return timeout
}

// apply steps the machine and executes the returned actions. Challenge
// outcomes are fed straight back in, so escalation to Wiping happens
// within the same call.
func (g *Gate) apply(in InputKind) {
	before := g.m.State()
	actions := g.m.Step(in)
	after := g.m.State()

	if before != after {
		log.Info().
			Str("input", in.String()).
			Str("from", before.String()).
			Str("to", after.String()).
			Msg("State transition")
		g.record("transition", audit.Detail{
			Event:       in.String(),
			StateBefore: before.String(),
			StateAfter:  after.String(),
			Reason:      g.m.Cause(),
		})
	}

	for _, a := range actions {
		switch a {
		case ActionResetHeartbeat:
			g.lastHeartbeat = time.Now()

		case ActionStartArmingTimer:
			g.armingDeadline = time.Now().Add(g.cfg.ArmingDelay())
			log.Info().
				Time("armed_at", g.armingDeadline).
				Msg("Arming timer started")

		case ActionCancelArmingTimer:
			g.armingDeadline = time.Time{}
			log.Info().Msg("Arming cancelled by lid reopen")

		case ActionRunChallenge:
			g.runChallenge()

		case ActionAuthorizeWipe:
			g.authorizeWipe()
		}
	}
}

// runChallenge blocks on the verifier subprocess and feeds the outcome
// back into the machine.
func (g *Gate) runChallenge() {
	cause := g.m.Cause()
	log.Warn().
		Str("cause", cause).
		Msg("Suspected tamper, invoking challenge verifier")

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ChallengeTimeout())
	defer cancel()

	err := g.challenge(ctx)
	passed := err == nil

	g.record("challenge", audit.Detail{
		Reason: cause,
		Result: challengeResult(passed),
	})

	if passed {
		log.Info().Str("cause", cause).Msg("Challenge passed, disarming")
		g.apply(InputChallengePassed)
	} else {
		log.Error().Str("cause", cause).Msg("Challenge failed")
		g.apply(InputChallengeFailed)
	}
}

// authorizeWipe writes the trigger file and starts the wipe unit. A
// trigger-file write failure is retried once through the audit record and
// then surfaced loudly; the process still exits non-zero either way.
func (g *Gate) authorizeWipe() {
	log.Error().
		Str("reason", WipeReason).
		Str("trigger", g.cfg.WipeTriggerFile).
		Msg("Authorizing data wipe")

	if err := writeWipeTrigger(g.cfg.WipeTriggerFile, WipeReason); err != nil {
		log.Error().Err(err).Msg("Failed to write wipe trigger file")
	} else {
		g.triggerWritten = true
	}

	g.record("wipe_authorized", audit.Detail{Reason: WipeReason})

	if err := startWipeUnit(g.cfg.WipeUnit); err != nil {
		log.Error().Err(err).Msg("Failed to start wipe unit")
	}
}

// record appends to the audit trail; audit failures never block or alter
// escalation.
func (g *Gate) record(kind string, d audit.Detail) {
	if g.trail == nil {
		return
	}
	if err := g.trail.Append(kind, d); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Audit append failed")
	}
}

func challengeResult(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// String implements fmt.Stringer for diagnostics.
func (g *Gate) String() string {
	return fmt.Sprintf("gate{state=%s anomalies=%d}", g.m.State(), g.m.Anomalies())
}
