package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/passes"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// OperationsServiceName is the fully-qualified name of the operations service.
const OperationsServiceName = "satops.v1.OperationsService"

// Full method names.
const (
	ListConnectionsMethod         = "/" + OperationsServiceName + "/ListConnections"
	ListOverpassesMethod          = "/" + OperationsServiceName + "/ListOverpasses"
	CompileFlightPlanMethod       = "/" + OperationsServiceName + "/CompileFlightPlan"
	GetImagingOpportunityMethod   = "/" + OperationsServiceName + "/GetImagingOpportunity"
	GetFlightPlanMethod           = "/" + OperationsServiceName + "/GetFlightPlan"
	CreateFlightPlanMethod        = "/" + OperationsServiceName + "/CreateFlightPlan"
	CreateFlightPlanVersionMethod = "/" + OperationsServiceName + "/CreateFlightPlanVersion"
	ReviewFlightPlanMethod        = "/" + OperationsServiceName + "/ReviewFlightPlan"
	AssignOverpassMethod          = "/" + OperationsServiceName + "/AssignOverpass"
)

// Connections lists gateway sessions.
type Connections interface {
	Connections() []gateway.Status
}

// Overpasses lists predicted and stored overpasses.
type Overpasses interface {
	ListWithStored(ctx context.Context, req passes.Request) ([]passes.Window, error)
}

// FlightPlans authors, reviews, assigns and compiles flight plans.
// *flightplan.Service satisfies it.
type FlightPlans interface {
	Get(ctx context.Context, id string) (*model.FlightPlan, error)
	Create(ctx context.Context, req flightplan.CreateRequest) (flightplan.Result, error)
	CreateNewVersion(ctx context.Context, id string, req flightplan.UpdateRequest) (flightplan.Result, error)
	ApproveOrReject(ctx context.Context, id string, approve bool, approverID string) (flightplan.Result, error)
	AssignOverpass(ctx context.Context, id string, req flightplan.AssignRequest) (flightplan.Result, error)
	CompileToScript(ctx context.Context, id string) ([]string, error)
	GetImagingOpportunity(ctx context.Context, req flightplan.ImagingRequest) (*flightplan.ImagingResponse, error)
}

// OperationsServer is the handler set of the operations service. Requests
// and responses are JSON-shaped structpb values.
type OperationsServer interface {
	ListConnections(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListOverpasses(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompileFlightPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetImagingOpportunity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetFlightPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateFlightPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateFlightPlanVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReviewFlightPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignOverpass(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Operations implements OperationsServer.
type Operations struct {
	connections Connections
	overpasses  Overpasses
	plans       FlightPlans
}

var _ OperationsServer = (*Operations)(nil)

// NewOperations returns the operations handlers.
func NewOperations(connections Connections, overpasses Overpasses, plans FlightPlans) *Operations {
	return &Operations{connections: connections, overpasses: overpasses, plans: plans}
}

// RegisterOperationsServer registers srv on s.
func RegisterOperationsServer(s grpc.ServiceRegistrar, srv OperationsServer) {
	s.RegisterService(&operationsServiceDesc, srv)
}

type overpassQuery struct {
	SatelliteID        string    `json:"satelliteId"`
	GroundStationID    string    `json:"groundStationId"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	MinElevationDeg    float64   `json:"minElevationDeg"`
	MaxResults         int       `json:"maxResults"`
	MinDurationSeconds float64   `json:"minDurationSeconds"`
}

type compileQuery struct {
	ID string `json:"id"`
}

type planContent struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	SatelliteID     string          `json:"satelliteId"`
	GroundStationID string          `json:"groundStationId"`
	CreatedBy       string          `json:"createdBy"`
	Commands        json.RawMessage `json:"commands"`
}

type reviewQuery struct {
	ID         string `json:"id"`
	Approve    bool   `json:"approve"`
	ApproverID string `json:"approverId"`
}

type assignQuery struct {
	ID              string    `json:"id"`
	GroundStationID string    `json:"groundStationId"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	MinElevationDeg float64   `json:"minElevationDeg"`
	MaxElevationDeg *float64  `json:"maxElevationDeg,omitempty"`
	DurationSeconds *float64  `json:"durationSeconds,omitempty"`
}

// resultBody is the response of every authoring RPC. Business rejections
// come back with success=false and an OK status.
type resultBody struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	FlightPlan *model.FlightPlan `json:"flightPlan,omitempty"`
	Overpass   *model.Overpass   `json:"overpass,omitempty"`
}

func resultStruct(res flightplan.Result, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, err
	}
	return toStruct(resultBody{
		Success:    res.Success,
		Message:    res.Message,
		FlightPlan: res.Plan,
		Overpass:   res.Overpass,
	})
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	return nil
}

type imagingQuery struct {
	SatelliteID              string     `json:"satelliteId"`
	Latitude                 float64    `json:"latitude"`
	Longitude                float64    `json:"longitude"`
	From                     *time.Time `json:"from,omitempty"`
	MaxSearchDurationMinutes float64    `json:"maxSearchDurationMinutes"`
	MaxOffNadirDeg           float64    `json:"maxOffNadirDeg"`
}

// ListConnections returns {"connections": [...]}.
func (o *Operations) ListConnections(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(map[string]any{"connections": o.connections.Connections()})
}

// ListOverpasses returns {"overpasses": [...]} merged with stored records.
func (o *Operations) ListOverpasses(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q overpassQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if q.SatelliteID == "" || q.GroundStationID == "" {
		return nil, fmt.Errorf("%w: satelliteId and groundStationId are required", ErrInvalidArgument)
	}
	windows, err := o.overpasses.ListWithStored(ctx, passes.Request{
		SatelliteID:        q.SatelliteID,
		GroundStationID:    q.GroundStationID,
		Start:              q.Start,
		End:                q.End,
		MinElevationDeg:    q.MinElevationDeg,
		MaxResults:         q.MaxResults,
		MinDurationSeconds: q.MinDurationSeconds,
	})
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"overpasses": windows})
}

// CompileFlightPlan returns {"flightPlanId": id, "script": [...]}.
func (o *Operations) CompileFlightPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q compileQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if q.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	script, err := o.plans.CompileToScript(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"flightPlanId": q.ID, "script": script})
}

// GetImagingOpportunity returns the best imaging instant with advisories.
func (o *Operations) GetImagingOpportunity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q imagingQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if q.SatelliteID == "" {
		return nil, fmt.Errorf("%w: satelliteId is required", ErrInvalidArgument)
	}
	resp, err := o.plans.GetImagingOpportunity(ctx, flightplan.ImagingRequest{
		SatelliteID:       q.SatelliteID,
		Target:            model.Geodetic{Latitude: q.Latitude, Longitude: q.Longitude},
		From:              q.From,
		MaxSearchDuration: time.Duration(q.MaxSearchDurationMinutes * float64(time.Minute)),
		MaxOffNadirDeg:    q.MaxOffNadirDeg,
	})
	if err != nil {
		return nil, err
	}
	return toStruct(resp)
}

// GetFlightPlan returns {"flightPlan": {...}}.
func (o *Operations) GetFlightPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q compileQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if err := requireID(q.ID); err != nil {
		return nil, err
	}
	plan, err := o.plans.Get(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"flightPlan": plan})
}

// CreateFlightPlan stores a new Draft plan.
func (o *Operations) CreateFlightPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q planContent
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	return resultStruct(o.plans.Create(ctx, flightplan.CreateRequest{
		Name:            q.Name,
		SatelliteID:     q.SatelliteID,
		GroundStationID: q.GroundStationID,
		CreatedBy:       q.CreatedBy,
		Commands:        q.Commands,
	}))
}

// CreateFlightPlanVersion supersedes plan id with new content.
func (o *Operations) CreateFlightPlanVersion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q planContent
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if err := requireID(q.ID); err != nil {
		return nil, err
	}
	return resultStruct(o.plans.CreateNewVersion(ctx, q.ID, flightplan.UpdateRequest{
		Name:            q.Name,
		SatelliteID:     q.SatelliteID,
		GroundStationID: q.GroundStationID,
		Commands:        q.Commands,
	}))
}

// ReviewFlightPlan approves or rejects a Draft plan.
func (o *Operations) ReviewFlightPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q reviewQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if err := requireID(q.ID); err != nil {
		return nil, err
	}
	return resultStruct(o.plans.ApproveOrReject(ctx, q.ID, q.Approve, q.ApproverID))
}

// AssignOverpass binds the plan to the pass matching the requested window.
func (o *Operations) AssignOverpass(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q assignQuery
	if err := fromStruct(in, &q); err != nil {
		return nil, err
	}
	if err := requireID(q.ID); err != nil {
		return nil, err
	}
	return resultStruct(o.plans.AssignOverpass(ctx, q.ID, flightplan.AssignRequest{
		GroundStationID: q.GroundStationID,
		Start:           q.Start,
		End:             q.End,
		MinElevationDeg: q.MinElevationDeg,
		MaxElevationDeg: q.MaxElevationDeg,
		DurationSeconds: q.DurationSeconds,
	}))
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

func listConnectionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OperationsServer).ListConnections(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListConnectionsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OperationsServer).ListConnections(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// structHandler builds the method handler of a Struct-in, Struct-out RPC.
func structHandler(fullMethod string, call func(OperationsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OperationsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OperationsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var operationsServiceDesc = grpc.ServiceDesc{
	ServiceName: OperationsServiceName,
	HandlerType: (*OperationsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListConnections", Handler: listConnectionsHandler},
		{MethodName: "ListOverpasses", Handler: structHandler(ListOverpassesMethod, OperationsServer.ListOverpasses)},
		{MethodName: "CompileFlightPlan", Handler: structHandler(CompileFlightPlanMethod, OperationsServer.CompileFlightPlan)},
		{MethodName: "GetImagingOpportunity", Handler: structHandler(GetImagingOpportunityMethod, OperationsServer.GetImagingOpportunity)},
		{MethodName: "GetFlightPlan", Handler: structHandler(GetFlightPlanMethod, OperationsServer.GetFlightPlan)},
		{MethodName: "CreateFlightPlan", Handler: structHandler(CreateFlightPlanMethod, OperationsServer.CreateFlightPlan)},
		{MethodName: "CreateFlightPlanVersion", Handler: structHandler(CreateFlightPlanVersionMethod, OperationsServer.CreateFlightPlanVersion)},
		{MethodName: "ReviewFlightPlan", Handler: structHandler(ReviewFlightPlanMethod, OperationsServer.ReviewFlightPlan)},
		{MethodName: "AssignOverpass", Handler: structHandler(AssignOverpassMethod, OperationsServer.AssignOverpass)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "satops/v1/operations.proto",
}
