package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// appSysNode is the CSP node of the application system manager.
const appSysNode = 5421

// ConfigureSom routes the system-on-module outputs to the processing
// pipeline and camera controller. It runs on receipt when no execution time
// is given.
type ConfigureSom struct {
	ExecutionTime *time.Time `json:"executionTime,omitempty"`
}

func (ConfigureSom) isCommand() {}

// Type implements Command.
func (ConfigureSom) Type() Type { return TypeConfigureSom }

// ExecutesAt implements Command.
func (c ConfigureSom) ExecutesAt() *time.Time { return c.ExecutionTime }

// Validate implements Command.
func (ConfigureSom) Validate() []Violation { return nil }

// Compile implements Command.
func (ConfigureSom) Compile() ([]string, error) {
	return []string{
		fmt.Sprintf("set mng_dipp 5423 -n %d", appSysNode),
		fmt.Sprintf("set mng_camera_control 5422 -n %d", appSysNode),
	}, nil
}

// MarshalJSON adds the discriminator.
func (c ConfigureSom) MarshalJSON() ([]byte, error) {
	type plain ConfigureSom
	return json.Marshal(struct {
		CommandType Type `json:"commandType"`
		plain
	}{TypeConfigureSom, plain(c)})
}
