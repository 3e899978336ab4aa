package main

// SystemState is the arming state of the gate. Exactly one live instance
// exists per process; transitions happen only on the event-loop goroutine.
type SystemState int

const (
	StateDisarmed SystemState = iota
	StateArming
	StateArmed
	StateChallenging
	StateWiping
)

func (s SystemState) String() string {
	switch s {
	case StateDisarmed:
		return "disarmed"
	case StateArming:
		return "arming"
	case StateArmed:
		return "armed"
	case StateChallenging:
		return "challenging"
	case StateWiping:
		return "wiping"
	default:
		return "unknown"
	}
}

// InputKind identifies a machine input: a sensor event or a synthetic
// input injected by the event loop (timer expiry, heartbeat silence,
// challenge outcome).
type InputKind int

const (
	InputLidClosed InputKind = iota
	InputLidOpened
	InputLightAnomaly
	InputHeartbeat
	InputArmingElapsed
	InputHeartbeatSilence
	InputChallengePassed
	InputChallengeFailed
)

func (k InputKind) String() string {
	switch k {
	case InputLidClosed:
		return "lid_closed"
	case InputLidOpened:
		return "lid_opened"
	case InputLightAnomaly:
		return "light_anomaly"
	case InputHeartbeat:
		return "heartbeat"
	case InputArmingElapsed:
		return "arming_elapsed"
	case InputHeartbeatSilence:
		return "heartbeat_silence"
	case InputChallengePassed:
		return "challenge_passed"
	case InputChallengeFailed:
		return "challenge_failed"
	default:
		return "unknown"
	}
}

// Action is a side effect the event loop must perform after a step.
// The machine itself does no I/O.
type Action int

const (
	ActionStartArmingTimer Action = iota
	ActionCancelArmingTimer
	ActionResetHeartbeat
	ActionRunChallenge
	ActionAuthorizeWipe
)

// WipeReason is the reason recorded in the wipe trigger file. A wipe is
// only ever authorized by a failed challenge.
const WipeReason = "challenge_failed"

// Machine implements the arming state machine. Step is pure with respect
// to I/O: it mutates only the machine's own fields and returns the actions
// the caller must execute.
type Machine struct {
	state     SystemState
	anomalies int
	threshold int
	cause     string
}

// NewMachine returns a machine in the Disarmed state. threshold is the
// number of light anomalies that escalates to a challenge while armed.
func NewMachine(threshold int) *Machine {
	return &Machine{state: StateDisarmed, threshold: threshold}
}

// State returns the current state.
func (m *Machine) State() SystemState {
	return m.state
}

// Cause returns what triggered the pending or last challenge
// (lid_opened, light_anomaly, heartbeat_silence).
func (m *Machine) Cause() string {
	return m.cause
}

// Anomalies returns the current light-anomaly count.
func (m *Machine) Anomalies() int {
	return m.anomalies
}

// Step advances the machine by one input and returns the actions to run.
// Wiping is terminal: once entered, every further input is ignored.
func (m *Machine) Step(in InputKind) []Action {
	// Heartbeats reset the liveness clock in every state.
	if in == InputHeartbeat {
		return []Action{ActionResetHeartbeat}
	}

	switch m.state {
	case StateDisarmed:
		if in == InputLidClosed {
			m.state = StateArming
			return []Action{ActionStartArmingTimer}
		}

	case StateArming:
		switch in {
		case InputLidOpened:
			// Reopening before the delay elapses cancels arming.
			m.state = StateDisarmed
			return []Action{ActionCancelArmingTimer}
		case InputArmingElapsed:
			m.state = StateArmed
			m.anomalies = 0
		}

	case StateArmed:
		switch in {
		case InputLidOpened:
			return m.toChallenge("lid_opened")
		case InputLightAnomaly:
			m.anomalies++
			if m.anomalies >= m.threshold {
				return m.toChallenge("light_anomaly")
			}
		case InputHeartbeatSilence:
			// A silent sensor is indistinguishable from a cut sensor.
			return m.toChallenge("heartbeat_silence")
		}

	case StateChallenging:
		switch in {
		case InputChallengePassed:
			m.state = StateDisarmed
			m.anomalies = 0
		case InputChallengeFailed:
			m.state = StateWiping
			return []Action{ActionAuthorizeWipe}
		}

	case StateWiping:
		// Terminal.
	}

	return nil
}

func (m *Machine) toChallenge(cause string) []Action {
	m.state = StateChallenging
	m.cause = cause
	return []Action{ActionRunChallenge}
}
