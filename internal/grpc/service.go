package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fieldops.dispatch.v1.DispatchService"

// Method names of DispatchService.
const (
	MethodRegisterDriver  = "RegisterDriver"
	MethodListDrivers     = "ListDrivers"
	MethodSetDriverStatus = "SetDriverStatus"
	MethodUpsertDelivery  = "UpsertDelivery"
	MethodAssignDelivery  = "AssignDelivery"
	MethodListDeliveries  = "ListDeliveries"
	MethodDeliveryCounts  = "DeliveryCounts"
	MethodRemoveDelivery  = "RemoveDelivery"
	MethodBroadcastToday  = "BroadcastToday"
)

// healthService prefixes the standard health methods, which need no token.
const healthService = "/grpc.health.v1.Health/"

// FullMethod returns the /service/method path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// DispatchService is the server API. Messages are well-known protobuf types so
// the service needs no generated code; field names follow the JSON wire names.
type DispatchService interface {
	RegisterDriver(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDrivers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetDriverStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertDelivery(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignDelivery(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDeliveries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeliveryCounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveDelivery(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	BroadcastToday(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes DispatchService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatchService)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegisterDriver, DispatchService.RegisterDriver),
		unary(MethodListDrivers, DispatchService.ListDrivers),
		unary(MethodSetDriverStatus, DispatchService.SetDriverStatus),
		unary(MethodUpsertDelivery, DispatchService.UpsertDelivery),
		unary(MethodAssignDelivery, DispatchService.AssignDelivery),
		unary(MethodListDeliveries, DispatchService.ListDeliveries),
		unary(MethodDeliveryCounts, DispatchService.DeliveryCounts),
		unary(MethodRemoveDelivery, DispatchService.RemoveDelivery),
		unary(MethodBroadcastToday, DispatchService.BroadcastToday),
	},
	Metadata: "fieldops/dispatch/v1/dispatch.proto",
}

// RegisterDispatchService registers srv on s.
func RegisterDispatchService(s grpc.ServiceRegistrar, srv DispatchService) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Resp proto.Message](name string, call func(DispatchService, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DispatchService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(DispatchService), ctx, req.(*structpb.Struct))
			})
		},
	}
}
