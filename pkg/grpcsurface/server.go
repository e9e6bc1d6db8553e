package grpcsurface

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/theapemachine/a2a-go/pkg/auth"
	"github.com/theapemachine/a2a-go/pkg/grpcsurface/pb"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
)

const serviceName = "a2a.A2AService"

func _A2A_SendMessage_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SendMessage"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).SendMessage(ctx, req.(*pb.SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_GetTask_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.GetTaskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).GetTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetTask"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).GetTask(ctx, req.(*pb.GetTaskRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_ListTasks_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.ListTasksRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).ListTasks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListTasks"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).ListTasks(ctx, req.(*pb.ListTasksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_CancelTask_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.CancelTaskRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).CancelTask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CancelTask"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).CancelTask(ctx, req.(*pb.CancelTaskRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_TaskFeedback_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.TaskFeedbackRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).TaskFeedback(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/TaskFeedback"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).TaskFeedback(ctx, req.(*pb.TaskFeedbackRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_ListContexts_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.ListContextsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).ListContexts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListContexts"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).ListContexts(ctx, req.(*pb.ListContextsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_ClearContext_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.ClearContextRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).ClearContext(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ClearContext"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).ClearContext(ctx, req.(*pb.ClearContextRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_SetTaskPushNotification_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.SetTaskPushNotificationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).SetTaskPushNotification(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SetTaskPushNotification"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).SetTaskPushNotification(ctx, req.(*pb.SetTaskPushNotificationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_GetTaskPushNotification_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.GetTaskPushNotificationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).GetTaskPushNotification(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetTaskPushNotification"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).GetTaskPushNotification(ctx, req.(*pb.GetTaskPushNotificationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_ListTaskPushNotifications_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.ListTaskPushNotificationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).ListTaskPushNotifications(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListTaskPushNotifications"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).ListTaskPushNotifications(ctx, req.(*pb.ListTaskPushNotificationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_DeleteTaskPushNotification_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.DeleteTaskPushNotificationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).DeleteTaskPushNotification(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteTaskPushNotification"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).DeleteTaskPushNotification(ctx, req.(*pb.DeleteTaskPushNotificationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_HealthCheck_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(pb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Servicer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Servicer).HealthCheck(ctx, req.(*pb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _A2A_StreamMessage_Handler(srv any, stream grpc.ServerStream) error {
	m := new(pb.StreamMessageRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(*Servicer).StreamMessage(m, &a2aStreamMessageServer{stream})
}

// serviceDesc is the hand-authored stand-in for what protoc-gen-go-grpc
// would emit for a2a.proto's A2AService.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Servicer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: _A2A_SendMessage_Handler},
		{MethodName: "GetTask", Handler: _A2A_GetTask_Handler},
		{MethodName: "ListTasks", Handler: _A2A_ListTasks_Handler},
		{MethodName: "CancelTask", Handler: _A2A_CancelTask_Handler},
		{MethodName: "TaskFeedback", Handler: _A2A_TaskFeedback_Handler},
		{MethodName: "ListContexts", Handler: _A2A_ListContexts_Handler},
		{MethodName: "ClearContext", Handler: _A2A_ClearContext_Handler},
		{MethodName: "SetTaskPushNotification", Handler: _A2A_SetTaskPushNotification_Handler},
		{MethodName: "GetTaskPushNotification", Handler: _A2A_GetTaskPushNotification_Handler},
		{MethodName: "ListTaskPushNotifications", Handler: _A2A_ListTaskPushNotifications_Handler},
		{MethodName: "DeleteTaskPushNotification", Handler: _A2A_DeleteTaskPushNotification_Handler},
		{MethodName: "HealthCheck", Handler: _A2A_HealthCheck_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamMessage", Handler: _A2A_StreamMessage_Handler, ServerStreams: true},
	},
	Metadata: "a2a.proto",
}

// authUnaryInterceptor enforces the same bearer-token contract as
// auth.Middleware.Handler, reading the token from the "authorization"
// gRPC metadata key instead of an HTTP header.
func authUnaryInterceptor(mw *auth.Middleware) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == "/"+serviceName+"/HealthCheck" {
			return handler(ctx, req)
		}
		principal, aerr := mw.Authenticate(ctx, bearerFromMetadata(ctx))
		if aerr != nil {
			return nil, status.New(mapCode(aerr.GRPCStatus()), aerr.Message).Err()
		}
		return handler(auth.WithPrincipal(ctx, principal), req)
	}
}

func authStreamInterceptor(mw *auth.Middleware) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		principal, aerr := mw.Authenticate(ss.Context(), bearerFromMetadata(ss.Context()))
		if aerr != nil {
			return status.New(mapCode(aerr.GRPCStatus()), aerr.Message).Err()
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: auth.WithPrincipal(ss.Context(), principal)})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		const prefix = "Bearer "
		if strings.HasPrefix(v, prefix) {
			return v[len(prefix):]
		}
	}
	return ""
}

// NewServer wires a *grpc.Server around a Servicer, forcing the JSON wire
// codec registered in codec.go in place of binary protobuf encoding. mw may
// be nil to run the gRPC surface without authentication (e.g. local dev).
func NewServer(tm *taskmanager.TaskManager, mw *auth.Middleware) *grpc.Server {
	opts := []grpc.ServerOption{grpc.ForceServerCodec(jsonCodec{})}
	if mw != nil {
		opts = append(opts,
			grpc.UnaryInterceptor(authUnaryInterceptor(mw)),
			grpc.StreamInterceptor(authStreamInterceptor(mw)),
		)
	}
	server := grpc.NewServer(opts...)
	server.RegisterService(&serviceDesc, &Servicer{TaskManager: tm})
	return server
}
