package payment

import "fmt"

// State is a step of the payment workflow
type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StateSending    State = "sending"
	StateVerifying  State = "verifying"
	StateConverting State = "converting"
	StateRecording  State = "recording"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle:       {StateInitiating, StateFailed},
	StateInitiating: {StateSending, StateFailed},
	StateSending:    {StateVerifying, StateFailed},
	StateVerifying:  {StateConverting, StateFailed},
	StateConverting: {StateRecording, StateFailed},
	StateRecording:  {StateComplete, StateFailed},
}

// IsTerminal reports whether the workflow has ended
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransition reports whether from → to is a legal step
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// machine tracks one payment run through the workflow
type machine struct {
	state    State
	history  []State
	observer func(from, to State)
}

func newMachine(observer func(from, to State)) *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}, observer: observer}
}

func (m *machine) transition(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal payment state transition %s -> %s", m.state, to)
	}
	from := m.state
	m.state = to
	m.history = append(m.history, to)
	if m.observer != nil {
		m.observer(from, to)
	}
	return nil
}
