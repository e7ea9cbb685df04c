package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidToken indicates a hello token that does not authenticate.
	ErrInvalidToken = errors.New("invalid ground station token")
	// ErrStationInactive indicates a known but deactivated station.
	ErrStationInactive = errors.New("ground station is inactive")
)

// StationCatalog resolves ground stations. *kb.KnowledgeBase satisfies it.
type StationCatalog interface {
	GetGroundStation(id string) (*model.GroundStation, error)
}

// StationAuthenticator checks "<station-id>:<secret>" tokens against the
// bcrypt hash stored on the station.
type StationAuthenticator struct {
	stations StationCatalog
}

var _ gateway.Authenticator = (*StationAuthenticator)(nil)

// NewStationAuthenticator returns an authenticator over stations.
func NewStationAuthenticator(stations StationCatalog) *StationAuthenticator {
	return &StationAuthenticator{stations: stations}
}

// Authenticate implements gateway.Authenticator.
func (a *StationAuthenticator) Authenticate(_ context.Context, token string) (*model.GroundStation, error) {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || secret == "" {
		return nil, fmt.Errorf("%w: expected <station-id>:<secret>", ErrInvalidToken)
	}
	gs, err := a.stations.GetGroundStation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !gs.Active {
		return nil, fmt.Errorf("%w: %s", ErrStationInactive, id)
	}
	if gs.CredentialHash == "" {
		return nil, fmt.Errorf("%w: station %s has no credential", ErrInvalidToken, id)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(gs.CredentialHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}
	return gs, nil
}

// HashSecret returns the bcrypt hash to store as a station credential.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
