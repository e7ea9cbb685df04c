package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// ErrInvalidHello indicates a first frame that is not a hello message.
var ErrInvalidHello = errors.New("invalid hello message")

// Socket is a full websocket session. *websocket.Conn satisfies it.
type Socket interface {
	Conn
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
}

// Authenticator resolves the token of a hello frame to a station.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.GroundStation, error)
}

// Hello is the first frame a station sends.
type Hello struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HelloReply acknowledges an accepted station.
type HelloReply struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// Serve runs one station session: it reads the hello frame, authenticates
// it, acknowledges, registers the connection and then reads until the
// station disconnects or ctx ends. The connection is unregistered on
// return. A normal close returns nil.
func (r *Registry) Serve(ctx context.Context, ws Socket, auth Authenticator) error {
	station, err := r.handshake(ctx, ws, auth)
	if err != nil {
		_ = ws.Close()
		return err
	}

	c := r.Register(ctx, station.ID, station.Name, ws)
	defer r.Unregister(ctx, c)
	stop := context.AfterFunc(ctx, c.close)
	defer stop()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !c.Open() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.log.Info(ctx, "ground station disconnected", logging.GroundStationID(station.ID))
				return nil
			}
			return fmt.Errorf("read from ground station %s: %w", station.ID, err)
		}
	}
}

func (r *Registry) handshake(ctx context.Context, ws Socket, auth Authenticator) (*model.GroundStation, error) {
	if err := ws.SetReadDeadline(time.Now().Add(r.helloTimeout)); err != nil {
		return nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}

	var hello Hello
	if err := json.Unmarshal(data, &hello); err != nil || hello.Type != "hello" || hello.Token == "" {
		r.log.Warn(ctx, "closing websocket: invalid hello message")
		r.closeWith(ws, "Invalid hello message")
		return nil, ErrInvalidHello
	}
	station, err := auth.Authenticate(ctx, hello.Token)
	if err != nil {
		r.log.Warn(ctx, "closing websocket: authentication failed", logging.Err(err))
		r.closeWith(ws, "Invalid token")
		return nil, fmt.Errorf("authenticate ground station: %w", err)
	}

	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	reply, err := json.Marshal(HelloReply{Message: "OK", ID: station.ID})
	if err != nil {
		return nil, err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(r.writeTimeout)); err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
		return nil, fmt.Errorf("write hello reply: %w", err)
	}
	return station, nil
}

func (r *Registry) closeWith(ws Socket, reason string) {
	_ = ws.SetWriteDeadline(time.Now().Add(r.writeTimeout))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
}
