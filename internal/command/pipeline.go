package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// dippNode is the CSP node of the data processing pipeline.
const dippNode = 162

// TriggerPipeline starts the onboard processing pipeline in the given mode
// at an authored execution time.
type TriggerPipeline struct {
	ExecutionTime *time.Time `json:"executionTime,omitempty"`
	Mode          *int       `json:"mode"`
}

func (TriggerPipeline) isCommand() {}

// Type implements Command.
func (TriggerPipeline) Type() Type { return TypeTriggerPipeline }

// ExecutesAt implements Command.
func (c TriggerPipeline) ExecutesAt() *time.Time { return c.ExecutionTime }

// Validate implements Command.
func (c TriggerPipeline) Validate() []Violation {
	r := &rules{}
	if c.ExecutionTime == nil {
		r.add("executionTime", "ExecutionTime is required")
	}
	if c.Mode == nil {
		r.add("mode", "Mode is required")
	} else {
		r.intRange("mode", *c.Mode, 0, 100, "Mode must be between 0 and 100")
	}
	return r.out
}

// Compile implements Command.
func (c TriggerPipeline) Compile() ([]string, error) {
	if c.ExecutionTime == nil {
		return nil, notReady(TypeTriggerPipeline)
	}
	if c.Mode == nil {
		return nil, fmt.Errorf("%w: mode is required", ErrInvalidCommand)
	}
	return []string{fmt.Sprintf("set pipeline_run %d -n %d", *c.Mode, dippNode)}, nil
}

// MarshalJSON adds the discriminator.
func (c TriggerPipeline) MarshalJSON() ([]byte, error) {
	type plain TriggerPipeline
	return json.Marshal(struct {
		CommandType Type `json:"commandType"`
		plain
	}{TypeTriggerPipeline, plain(c)})
}
