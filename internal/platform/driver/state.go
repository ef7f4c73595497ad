package driver

import "fmt"

// State is an upload state machine state
type State string

const (
	StateInit       State = "INIT"
	StateUploading  State = "UPLOADING"
	StateProcessing State = "PROCESSING"
	StatePublished  State = "PUBLISHED"
	StateError      State = "ERROR"
)

var validTransitions = map[State][]State{
	StateInit:       {StateUploading, StateError},
	StateUploading:  {StateProcessing, StateError},
	StateProcessing: {StatePublished, StateError},
	StatePublished:  {},
	StateError:      {},
}

// ValidateTransition returns an error if from -> to is not allowed
func ValidateTransition(from, to State) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}

// IsTerminal reports whether no transition leaves s
func IsTerminal(s State) bool {
	return s == StatePublished || s == StateError
}

// machine tracks the visited states of one upload
type machine struct {
	history []State
}

func newMachine() *machine {
	return &machine{history: []State{StateInit}}
}

func (m *machine) current() State {
	return m.history[len(m.history)-1]
}

func (m *machine) advance(to State) error {
	if err := ValidateTransition(m.current(), to); err != nil {
		return err
	}
	m.history = append(m.history, to)
	return nil
}
