package api

import (
	"context"
	"errors"

	"Go2NetSketch/internal/metrics"
	"Go2NetSketch/internal/query"
	"Go2NetSketch/pkg/countmin"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "countmin.v1.SketchService"

const (
	methodEstimate     = "/" + ServiceName + "/Estimate"
	methodHeavyHitters = "/" + ServiceName + "/HeavyHitters"
)

// SketchServiceServer is the server API for SketchService.
type SketchServiceServer interface {
	Estimate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HeavyHitters(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SketchServiceDesc describes SketchService for grpc.Server.RegisterService.
var SketchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SketchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Estimate", Handler: unaryHandler(methodEstimate, SketchServiceServer.Estimate)},
		{MethodName: "HeavyHitters", Handler: unaryHandler(methodHeavyHitters, SketchServiceServer.HeavyHitters)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "countmin/v1/sketch.proto",
}

type unaryMethod func(SketchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SketchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SketchServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterSketchService registers a Querier-backed SketchService on s.
func RegisterSketchService(s grpc.ServiceRegistrar, q query.Querier) {
	s.RegisterService(&SketchServiceDesc, &sketchService{querier: q})
}

type sketchService struct {
	querier query.Querier
}

func (s *sketchService) Estimate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	task, flow := f["task"].GetStringValue(), f["flow"].GetStringValue()
	log.Debug().Msgf("[api] gRPC Estimate task=%s flow=%q", task, flow)
	if task == "" || flow == "" {
		return nil, status.Error(codes.InvalidArgument, "task and flow are required")
	}
	est, err := s.querier.Estimate(ctx, task, flow, f["strategy"].GetStringValue())
	metrics.IncAPIQuery("grpc", "estimate", err)
	if err != nil {
		return nil, grpcError(err)
	}
	return estimateStruct(est)
}

func (s *sketchService) HeavyHitters(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	task := f["task"].GetStringValue()
	log.Debug().Msgf("[api] gRPC HeavyHitters task=%s", task)
	hs, err := s.querier.HeavyHitters(ctx, task, int(f["limit"].GetNumberValue()))
	metrics.IncAPIQuery("grpc", "heavy_hitters", err)
	if err != nil {
		return nil, grpcError(err)
	}
	return hittersStruct(task, hs)
}

func grpcError(err error) error {
	if errors.Is(err, query.ErrUnknownTask) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.InvalidArgument, err.Error())
}

// Client calls SketchService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Estimate queries one flow. An empty strategy selects the server default.
func (c *Client) Estimate(ctx context.Context, task, flow, strategy string) (*query.Estimate, error) {
	in, err := structpb.NewStruct(map[string]any{"task": task, "flow": flow, "strategy": strategy})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodEstimate, in, out); err != nil {
		return nil, err
	}
	f := out.GetFields()
	return &query.Estimate{
		Task:     f["task"].GetStringValue(),
		Flow:     f["flow"].GetStringValue(),
		Strategy: f["strategy"].GetStringValue(),
		Count:    int32(f["count"].GetNumberValue()),
	}, nil
}

// HeavyHitters fetches up to limit heavy hitters of task.
func (c *Client) HeavyHitters(ctx context.Context, task string, limit int) ([]countmin.Hitter, error) {
	in, err := structpb.NewStruct(map[string]any{"task": task, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodHeavyHitters, in, out); err != nil {
		return nil, err
	}
	return hittersFromStruct(out), nil
}
