// Package grpcapi exposes the availability engine over gRPC. Messages are
// google.protobuf.Struct values, so the service is declared by hand rather
// than generated.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "clinicbook.booking.v1.Availability"

const (
	methodGetFreeSlots  = "GetFreeSlots"
	methodCheckConflict = "CheckConflict"
	methodCreateBooking = "CreateBooking"
)

// ConflictTrailerKey carries the colliding appointment id on a rejected CreateBooking.
const ConflictTrailerKey = "x-conflicting-appointment-id"

// ReadRetryServiceConfig retries the read-only methods when the server is
// unavailable or busy. CreateBooking is never retried by the transport.
const ReadRetryServiceConfig = `{
  "methodConfig": [{
    "name": [
      {"service": "clinicbook.booking.v1.Availability", "method": "GetFreeSlots"},
      {"service": "clinicbook.booking.v1.Availability", "method": "CheckConflict"}
    ],
    "retryPolicy": {
      "maxAttempts": 3,
      "initialBackoff": "0.1s",
      "maxBackoff": "1s",
      "backoffMultiplier": 2,
      "retryableStatusCodes": ["UNAVAILABLE"]
    }
  }]
}`

type AvailabilityServer interface {
	GetFreeSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CheckConflict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodGetFreeSlots, Handler: unary(methodGetFreeSlots, AvailabilityServer.GetFreeSlots)},
		{MethodName: methodCheckConflict, Handler: unary(methodCheckConflict, AvailabilityServer.CheckConflict)},
		{MethodName: methodCreateBooking, Handler: unary(methodCreateBooking, AvailabilityServer.CreateBooking)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinicbook/booking/v1/availability.proto",
}

func Register(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary(method string, call func(AvailabilityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AvailabilityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AvailabilityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
