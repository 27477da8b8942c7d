package swap

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Step is a stage of a swap attempt.
type Step string

const (
	StepIdle            Step = "idle"
	StepMethodSelection Step = "method-selection"
	StepFeeEstimation   Step = "fee-estimation"
	StepPermitSigning   Step = "permit-signing"
	StepSwapExecution   Step = "swap-execution"
	StepCompleted       Step = "completed"
	StepFailed          Step = "failed"
)

func (s Step) rank() int {
	switch s {
	case StepMethodSelection:
		return 1
	case StepFeeEstimation:
		return 2
	case StepPermitSigning:
		return 3
	case StepSwapExecution:
		return 4
	case StepCompleted, StepFailed:
		return 5
	default:
		return 0
	}
}

// Terminal reports whether s ends an attempt.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// State is a snapshot of the current attempt.
type State struct {
	Attempt    uint64           `json:"attempt"`
	Step       Step             `json:"step"`
	Method     Method           `json:"method,omitempty"`
	Capability Capability       `json:"capability"`
	FeeUSDC    *decimal.Decimal `json:"feeUsdc,omitempty"`
	Error      string           `json:"error,omitempty"`
	Result     *Result          `json:"result,omitempty"`
}

// Machine tracks swap progress. Steps only move forward within an attempt;
// updates tagged with an older attempt are dropped.
type Machine struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

// NewMachine creates an idle machine. onChange may be nil.
func NewMachine(onChange func(State)) *Machine {
	return &Machine{state: State{Step: StepIdle}, onChange: onChange}
}

// Reset abandons the current attempt and starts a new one.
func (m *Machine) Reset() uint64 {
	m.mu.Lock()
	m.state = State{Attempt: m.state.Attempt + 1, Step: StepIdle}
	state := m.state
	m.mu.Unlock()
	m.notify(state)
	return state.Attempt
}

// Advance moves attempt to step if that is a forward move.
func (m *Machine) Advance(attempt uint64, step Step) bool {
	return m.update(attempt, func(s *State) bool {
		if step.rank() <= s.Step.rank() {
			return false
		}
		s.Step = step
		return true
	})
}

// SetMethod records the selected method.
func (m *Machine) SetMethod(attempt uint64, c Capability, method Method) bool {
	return m.update(attempt, func(s *State) bool {
		s.Capability = c
		s.Method = method
		return true
	})
}

// SetFee records the estimated fee.
func (m *Machine) SetFee(attempt uint64, fee decimal.Decimal) bool {
	return m.update(attempt, func(s *State) bool {
		s.FeeUSDC = &fee
		return true
	})
}

// Complete ends attempt successfully.
func (m *Machine) Complete(attempt uint64, result *Result) bool {
	return m.update(attempt, func(s *State) bool {
		s.Step = StepCompleted
		s.Result = result
		return true
	})
}

// Fail ends attempt with message.
func (m *Machine) Fail(attempt uint64, message string) bool {
	return m.update(attempt, func(s *State) bool {
		s.Step = StepFailed
		s.Error = message
		return true
	})
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) update(attempt uint64, fn func(*State) bool) bool {
	m.mu.Lock()
	if attempt != m.state.Attempt || m.state.Step.Terminal() || !fn(&m.state) {
		m.mu.Unlock()
		return false
	}
	state := m.state
	m.mu.Unlock()
	m.notify(state)
	return true
}

func (m *Machine) notify(state State) {
	if m.onChange != nil {
		m.onChange(state)
	}
}
