// Package command defines the closed set of satellite commands a flight plan
// may carry, their validation rules, their JSON wire representation and
// their compilation into the onboard scripting protocol.
package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// Type is the wire discriminator of a command.
type Type string

const (
	TypeTriggerCapture  Type = "TRIGGER_CAPTURE"
	TypeTriggerPipeline Type = "TRIGGER_PIPELINE"
	TypeConfigureSom    Type = "CONFIGURE_SOM"
)

var (
	// ErrNotReadyToCompile indicates a command still lacks a resolved
	// execution time.
	ErrNotReadyToCompile = errors.New("not ready to compile")
	// ErrInvalidCommand indicates a command cannot be rendered safely.
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is one step of a flight plan. The implementations in this package
// are the only variants; the unexported method keeps the set closed.
type Command interface {
	// Type returns the wire discriminator.
	Type() Type
	// ExecutesAt returns the execution time, if one is set.
	ExecutesAt() *time.Time
	// Validate checks field-level rules and returns every violation found.
	Validate() []Violation
	// Compile renders the command as protocol script lines.
	Compile() ([]string, error)

	isCommand()
}

// Targeted is implemented by commands whose execution time is derived from
// a ground target rather than authored.
type Targeted interface {
	Command
	// Target returns the ground point the command is aimed at.
	Target() model.Geodetic
	// WithExecutionTime returns a copy carrying the resolved time.
	WithExecutionTime(t time.Time) Command
}

// Sequence is an ordered list of commands. Order is significant and is
// preserved through serialization and compilation.
type Sequence []Command

// Validate runs every command's own rules and aggregates the violations,
// indexed by command position. It returns nil when the sequence is valid.
func (s Sequence) Validate() error {
	var issues []IndexedViolation
	for i, cmd := range s {
		if cmd == nil {
			issues = append(issues, IndexedViolation{Index: i, Violation: Violation{Message: "command is required"}})
			continue
		}
		for _, v := range cmd.Validate() {
			issues = append(issues, IndexedViolation{Index: i, Type: cmd.Type(), Violation: v})
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Violations: issues}
}

// Compile renders the whole sequence in order. The receiver is not
// modified.
func (s Sequence) Compile() ([]string, error) {
	out := make([]string, 0, len(s)*2)
	for i, cmd := range s {
		if cmd == nil {
			return nil, fmt.Errorf("command[%d]: %w: command is nil", i, ErrInvalidCommand)
		}
		lines, err := cmd.Compile()
		if err != nil {
			return nil, fmt.Errorf("command[%d] (%s): %w", i, cmd.Type(), err)
		}
		out = append(out, lines...)
	}
	return out, nil
}

// NeedsResolution reports whether any targeted command lacks an execution
// time.
func (s Sequence) NeedsResolution() bool {
	for _, cmd := range s {
		if t, ok := cmd.(Targeted); ok && t.ExecutesAt() == nil {
			return true
		}
	}
	return false
}

// ResolveFunc computes the execution time of the targeted command at index.
type ResolveFunc func(index int, target model.Geodetic) (time.Time, error)

// ResolveExecutionTimes returns a copy of the sequence in which every
// targeted command carries the time computed by fn. The receiver is not
// modified.
func (s Sequence) ResolveExecutionTimes(fn ResolveFunc) (Sequence, error) {
	out := make(Sequence, len(s))
	for i, cmd := range s {
		t, ok := cmd.(Targeted)
		if !ok {
			out[i] = cmd
			continue
		}
		at, err := fn(i, t.Target())
		if err != nil {
			return nil, fmt.Errorf("command[%d] (%s): %w", i, cmd.Type(), err)
		}
		out[i] = t.WithExecutionTime(at)
	}
	return out, nil
}

func notReady(t Type) error {
	return fmt.Errorf("%w: %s: ExecutionTime must be calculated before compiling", ErrNotReadyToCompile, t)
}
