package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// MessageTypeScheduleTransmission is the header type of a transmission.
const MessageTypeScheduleTransmission = "schedule_transmission"

// Transmission is one compiled flight plan addressed to a station.
type Transmission struct {
	GroundStationID string
	SatelliteID     string
	SatelliteName   string
	FlightPlanID    string
	ExecutionTime   time.Time
	Script          []string
}

// Header is the first frame of a transmission.
type Header struct {
	RequestID string     `json:"request_id"`
	Type      string     `json:"type"`
	Frames    int        `json:"frames"`
	Data      HeaderData `json:"data"`
}

// HeaderData identifies the plan the following script belongs to.
type HeaderData struct {
	Satellite       string `json:"satellite"`
	Time            string `json:"time"`
	FlightPlanID    string `json:"flight_plan_id"`
	SatelliteID     string `json:"satellite_id"`
	GroundStationID string `json:"ground_station_id"`
}

// Send writes the header frame and then the script frame to the station.
// Offline stations fail immediately with a *NotConnectedError; nothing is
// queued. A failed write closes and unregisters the connection.
func (r *Registry) Send(ctx context.Context, tx Transmission) (requestID string, err error) {
	ctx, span := observability.StartSpan(ctx, "gateway.Send", "ground_station", tx.GroundStationID,
		attribute.String("flight_plan_id", tx.FlightPlanID),
	)
	defer func() { observability.EndSpan(span, err) }()

	requestID = uuid.NewString()
	header, err := json.Marshal(Header{
		RequestID: requestID,
		Type:      MessageTypeScheduleTransmission,
		Frames:    1,
		Data: HeaderData{
			Satellite:       tx.SatelliteName,
			Time:            tx.ExecutionTime.UTC().Format(time.RFC3339Nano),
			FlightPlanID:    tx.FlightPlanID,
			SatelliteID:     tx.SatelliteID,
			GroundStationID: tx.GroundStationID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode transmission header: %w", err)
	}
	script := tx.Script
	if script == nil {
		script = []string{}
	}
	body, err := json.Marshal(script)
	if err != nil {
		return "", fmt.Errorf("encode transmission script: %w", err)
	}

	c, err := r.acquireCurrent(ctx, tx.GroundStationID)
	if err != nil {
		var nce *NotConnectedError
		if errors.As(err, &nce) {
			r.metrics.RecordSend("not_connected")
			r.log.Warn(ctx, "send to disconnected ground station", logging.GroundStationID(tx.GroundStationID))
		}
		return "", err
	}
	defer c.release()

	c.setLastCommandID(requestID)
	r.log.Info(ctx, "sending scheduled transmission",
		logging.String("request_id", requestID),
		logging.GroundStationID(tx.GroundStationID),
		logging.FlightPlanID(tx.FlightPlanID),
		logging.Int("script_lines", len(tx.Script)),
	)
	for _, frame := range [][]byte{header, body} {
		if err := r.write(c, frame); err != nil {
			r.metrics.RecordSend("error")
			r.Unregister(ctx, c)
			return "", fmt.Errorf("write to ground station %s: %w", tx.GroundStationID, err)
		}
	}
	r.metrics.RecordSend("ok")
	return requestID, nil
}

// acquireCurrent takes the send gate of the station's current connection.
// A connection replaced while the caller waited is given up in favour of
// its successor.
func (r *Registry) acquireCurrent(ctx context.Context, stationID string) (*Connection, error) {
	var stale *Connection
	for {
		c, ok := r.lookup(stationID)
		if !ok || !c.Open() || c == stale {
			return nil, &NotConnectedError{GroundStationID: stationID}
		}
		if err := c.acquire(ctx); err != nil {
			return nil, err
		}
		if c.Open() {
			return c, nil
		}
		c.release()
		stale = c
	}
}

func (r *Registry) write(c *Connection, frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
