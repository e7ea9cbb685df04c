package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// cameraControllerNode is the CSP node of the camera controller.
const cameraControllerNode = 2

var cameraIDPattern = regexp.MustCompile(`^[A-Za-z0-9 ._-]+$`)

// CameraType selects the imaging payload.
type CameraType int

const (
	CameraVMB CameraType = iota
	CameraIR
	CameraTest
)

var cameraTypeNames = map[CameraType]string{
	CameraVMB:  "VMB",
	CameraIR:   "IR",
	CameraTest: "TEST",
}

func (c CameraType) String() string {
	if s, ok := cameraTypeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CameraType(%d)", int(c))
}

// MarshalJSON encodes the camera type by name.
func (c CameraType) MarshalJSON() ([]byte, error) {
	s, ok := cameraTypeNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown camera type %d", int(c))
	}
	return json.Marshal(s)
}

// UnmarshalJSON accepts the camera type name (case-insensitive) or its
// numeric value.
func (c *CameraType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if _, ok := cameraTypeNames[CameraType(n)]; !ok {
			return fmt.Errorf("unknown camera type %d", n)
		}
		*c = CameraType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("camera type must be a string or number: %w", err)
	}
	for k, name := range cameraTypeNames {
		if strings.EqualFold(name, s) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown camera type %q", s)
}

// CaptureLocation is the ground target of a capture.
type CaptureLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CameraSettings configures the camera controller for a capture.
type CameraSettings struct {
	CameraID             string     `json:"cameraId"`
	Type                 CameraType `json:"type"`
	ExposureMicroseconds int        `json:"exposureMicroseconds"`
	ISO                  float64    `json:"iso"`
	NumImages            int        `json:"numImages"`
	IntervalMicroseconds int        `json:"intervalMicroseconds"`
	ObservationID        int        `json:"observationId"`
	PipelineID           int        `json:"pipelineId"`
}

// DefaultCameraSettings returns the settings used when an operator does not
// override them.
func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		CameraID:             "1800 U-500c",
		Type:                 CameraVMB,
		ExposureMicroseconds: 55000,
		ISO:                  1.0,
		NumImages:            1,
		ObservationID:        1,
		PipelineID:           1,
	}
}

// TriggerCapture powers the camera and captures images of a ground target.
// Its execution time is computed by the imaging optimizer and must not be
// authored.
type TriggerCapture struct {
	ExecutionTime   *time.Time       `json:"executionTime,omitempty"`
	CaptureLocation *CaptureLocation `json:"captureLocation"`
	CameraSettings  *CameraSettings  `json:"cameraSettings"`
}

func (TriggerCapture) isCommand() {}

// Type implements Command.
func (TriggerCapture) Type() Type { return TypeTriggerCapture }

// ExecutesAt implements Command.
func (c TriggerCapture) ExecutesAt() *time.Time { return c.ExecutionTime }

// Target implements Targeted.
func (c TriggerCapture) Target() model.Geodetic {
	if c.CaptureLocation == nil {
		return model.Geodetic{}
	}
	return model.Geodetic{Latitude: c.CaptureLocation.Latitude, Longitude: c.CaptureLocation.Longitude}
}

// WithExecutionTime implements Targeted.
func (c TriggerCapture) WithExecutionTime(t time.Time) Command {
	at := t.UTC()
	c.ExecutionTime = &at
	return c
}

// Validate implements Command. An authored execution time is a violation.
func (c TriggerCapture) Validate() []Violation {
	r := &rules{}
	if c.ExecutionTime != nil {
		r.add("executionTime", "ExecutionTime should not be provided for TRIGGER_CAPTURE; it is calculated from the capture location")
	}

	if c.CaptureLocation == nil {
		r.add("captureLocation", "CaptureLocation is required")
	} else {
		r.floatRange("captureLocation.latitude", c.CaptureLocation.Latitude, -90, 90, "Latitude must be between -90 and 90 degrees")
		r.floatRange("captureLocation.longitude", c.CaptureLocation.Longitude, -180, 180, "Longitude must be between -180 and 180 degrees")
	}

	s := c.CameraSettings
	if s == nil {
		r.add("cameraSettings", "CameraSettings is required")
		return r.out
	}
	switch {
	case len(s.CameraID) < 1 || len(s.CameraID) > 128:
		r.add("cameraSettings.cameraId", "CameraId must be between 1 and 128 characters")
	case !cameraIDPattern.MatchString(s.CameraID):
		r.add("cameraSettings.cameraId", "Invalid Camera ID format")
	}
	if _, ok := cameraTypeNames[s.Type]; !ok {
		r.add("cameraSettings.type", "Type must be one of VMB, IR, TEST")
	}
	r.intRange("cameraSettings.exposureMicroseconds", s.ExposureMicroseconds, 0, 2_000_000, "ExposureMicroseconds must be between 0 and 2,000,000")
	r.floatRange("cameraSettings.iso", s.ISO, 0.1, 10.0, "Iso must be between 0.1 and 10.0")
	r.intRange("cameraSettings.numImages", s.NumImages, 1, 1000, "NumImages must be between 1 and 1000")
	r.intRange("cameraSettings.intervalMicroseconds", s.IntervalMicroseconds, 0, 60_000_000, "IntervalMicroseconds must be between 0 and 60,000,000")
	if s.NumImages > 1 && s.IntervalMicroseconds == 0 {
		r.add("cameraSettings.intervalMicroseconds", "IntervalMicroseconds must be greater than 0 when capturing multiple images")
	}
	if s.ObservationID < 1 {
		r.add("cameraSettings.observationId", "ObservationId must be a positive integer")
	}
	if s.PipelineID < 1 {
		r.add("cameraSettings.pipelineId", "PipelineId must be a positive integer")
	}
	return r.out
}

// Compile implements Command. The camera is powered on, configured from a
// single key=value payload and then triggered.
func (c TriggerCapture) Compile() ([]string, error) {
	if c.ExecutionTime == nil {
		return nil, notReady(TypeTriggerCapture)
	}
	if c.CameraSettings == nil || c.CaptureLocation == nil {
		return nil, fmt.Errorf("%w: capture location and camera settings are required", ErrInvalidCommand)
	}
	s := c.CameraSettings
	if !cameraIDPattern.MatchString(s.CameraID) {
		return nil, fmt.Errorf("%w: Invalid Camera ID format", ErrInvalidCommand)
	}

	payload := strings.Join([]string{
		"camera_id=" + s.CameraID,
		"camera_type=" + strconv.Itoa(int(s.Type)),
		"exposure=" + strconv.Itoa(s.ExposureMicroseconds),
		"iso=" + formatFloat(s.ISO),
		"num_images=" + strconv.Itoa(s.NumImages),
		"interval=" + strconv.Itoa(s.IntervalMicroseconds),
		"obid=" + strconv.Itoa(s.ObservationID),
		"pipeline_id=" + strconv.Itoa(s.PipelineID),
		"lat=" + formatFloat(c.CaptureLocation.Latitude),
		"lon=" + formatFloat(c.CaptureLocation.Longitude),
	}, ";")

	return []string{
		fmt.Sprintf("set camera_state_param 1 -n %d", cameraControllerNode),
		"sleep 5",
		fmt.Sprintf("set capture_config_param %q -n %d", payload, cameraControllerNode),
		fmt.Sprintf("set capture_param 1 -n %d", cameraControllerNode),
	}, nil
}

// MarshalJSON adds the discriminator.
func (c TriggerCapture) MarshalJSON() ([]byte, error) {
	type plain TriggerCapture
	return json.Marshal(struct {
		CommandType Type `json:"commandType"`
		plain
	}{TypeTriggerCapture, plain(c)})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
