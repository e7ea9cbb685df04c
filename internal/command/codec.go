package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingCommandType indicates a command object without a
	// discriminator.
	ErrMissingCommandType = errors.New("missing required 'commandType' property")
	// ErrUnknownCommandType indicates an unrecognised discriminator.
	ErrUnknownCommandType = errors.New("unknown commandType")
)

type envelope struct {
	CommandType *Type `json:"commandType"`
}

// DecodeCommand decodes a single command object, dispatching on its
// commandType property.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if env.CommandType == nil || *env.CommandType == "" {
		return nil, ErrMissingCommandType
	}

	var (
		cmd Command
		err error
	)
	switch *env.CommandType {
	case TypeTriggerCapture:
		var c TriggerCapture
		err = json.Unmarshal(data, (*captureAlias)(&c))
		cmd = c
	case TypeTriggerPipeline:
		var c TriggerPipeline
		err = json.Unmarshal(data, (*pipelineAlias)(&c))
		cmd = c
	case TypeConfigureSom:
		var c ConfigureSom
		err = json.Unmarshal(data, (*somAlias)(&c))
		cmd = c
	default:
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCommandType, *env.CommandType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", *env.CommandType, err)
	}
	return cmd, nil
}

// Decode parses a JSON array of commands, preserving order. A null or empty
// document decodes to an empty sequence.
func Decode(data []byte) (Sequence, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Sequence{}, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("decode commands: %w", err)
	}
	out := make(Sequence, 0, len(raws))
	for i, raw := range raws {
		cmd, err := DecodeCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("command[%d]: %w", i, err)
		}
		out = append(out, cmd)
	}
	return out, nil
}

// Encode renders the sequence as a JSON array with a commandType on every
// element.
func Encode(s Sequence) (json.RawMessage, error) {
	if s == nil {
		s = Sequence{}
	}
	b, err := json.Marshal([]Command(s))
	if err != nil {
		return nil, fmt.Errorf("encode commands: %w", err)
	}
	return b, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	seq, err := Decode(data)
	if err != nil {
		return err
	}
	*s = seq
	return nil
}

// The alias types drop MarshalJSON and keep the discriminator field out of
// the variant structs.
type (
	captureAlias  TriggerCapture
	pipelineAlias TriggerPipeline
	somAlias      ConfigureSom
)
