package grpcserver

import (
	"context"
	"errors"

	"github.com/signalsfoundry/flightplan-orchestrator/core"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/command"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/imaging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/state"
	"github.com/signalsfoundry/flightplan-orchestrator/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidArgument marks malformed RPC input.
var ErrInvalidArgument = errors.New("invalid argument")

// ToStatusError maps orchestrator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrSatelliteNotFound),
		errors.Is(err, kb.ErrGroundStationNotFound),
		errors.Is(err, state.ErrFlightPlanNotFound),
		errors.Is(err, state.ErrOverpassNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, flightplan.ErrInvalidRequest),
		errors.Is(err, passes.ErrInvalidRequest),
		errors.Is(err, imaging.ErrInvalidSearch),
		errors.Is(err, command.ErrInvalidCommand),
		errors.Is(err, command.ErrMissingCommandType),
		errors.Is(err, command.ErrUnknownCommandType),
		errors.Is(err, core.ErrInvalidTLE):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, passes.ErrNoOrbitalElements),
		errors.Is(err, imaging.ErrNoOrbitalElements),
		errors.Is(err, flightplan.ErrInvalidPlan),
		errors.Is(err, flightplan.ErrIllegalTransition),
		errors.Is(err, flightplan.ErrNoImagingOpportunity),
		errors.Is(err, command.ErrNotReadyToCompile):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, state.ErrFlightPlanExists),
		errors.Is(err, state.ErrOverpassAlreadyLinked):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, gateway.ErrNotConnected):
		return status.Error(codes.Unavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
