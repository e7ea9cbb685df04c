package command

import (
	"fmt"
	"strings"
)

// Violation is a single broken field rule.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// IndexedViolation ties a violation to the command position that produced it.
type IndexedViolation struct {
	Index int  `json:"index"`
	Type  Type `json:"commandType,omitempty"`
	Violation
}

func (v IndexedViolation) String() string {
	if v.Type == "" {
		return fmt.Sprintf("command[%d]: %s", v.Index, v.Message)
	}
	return fmt.Sprintf("command[%d] (%s): %s", v.Index, v.Type, v.Message)
}

// ValidationError aggregates every violation in a sequence.
type ValidationError struct {
	Violations []IndexedViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "command validation failed: " + strings.Join(parts, "; ")
}

type rules struct {
	out []Violation
}

func (r *rules) add(field, msg string) {
	r.out = append(r.out, Violation{Field: field, Message: msg})
}

func (r *rules) intRange(field string, v, lo, hi int, msg string) {
	if v < lo || v > hi {
		r.add(field, msg)
	}
}

func (r *rules) floatRange(field string, v, lo, hi float64, msg string) {
	if v < lo || v > hi {
		r.add(field, msg)
	}
}
