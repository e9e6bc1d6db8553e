package grpcsurface

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/grpcsurface/pb"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
)

// Servicer implements the thirteen A2A RPCs over the same TaskManager
// contract the JSON-RPC and SSE surfaces call into, grounded on bindu's
// A2AServicer (server/grpc/servicer.py) method set and error mapping.
type Servicer struct {
	TaskManager *taskmanager.TaskManager
}

func toStatusErr(err error) error {
	if err == nil {
		return nil
	}
	if aerr, ok := a2a.AsError(err); ok {
		return status.New(mapCode(aerr.GRPCStatus()), aerr.Message).Err()
	}
	return status.New(codes.Internal, err.Error()).Err()
}

// mapCode translates a2a.Error's canonical status name into a grpc/codes
// value; a2a.Error.GRPCStatus already does the Kind -> name mapping, this
// is purely a string -> codes.Code lookup.
func mapCode(name string) codes.Code {
	switch name {
	case "INVALID_ARGUMENT":
		return codes.InvalidArgument
	case "FAILED_PRECONDITION":
		return codes.FailedPrecondition
	case "NOT_FOUND":
		return codes.NotFound
	case "UNAUTHENTICATED":
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}

func (s *Servicer) SendMessage(ctx context.Context, req *pb.SendMessageRequest) (*pb.SendMessageResponse, error) {
	task, err := s.TaskManager.SendMessage(ctx, a2a.MessageSendParams{Message: *messageFromPB(req.Message)})
	if err != nil {
		return nil, toStatusErr(err)
	}
	return &pb.SendMessageResponse{Task: taskToPB(task)}, nil
}

// A2A_StreamMessageServer is the typed server-streaming handle
// protoc-gen-go-grpc would generate for StreamMessage.
type A2A_StreamMessageServer interface {
	Send(*pb.TaskEvent) error
	grpc.ServerStream
}

type a2aStreamMessageServer struct{ grpc.ServerStream }

func (x *a2aStreamMessageServer) Send(e *pb.TaskEvent) error {
	return x.ServerStream.SendMsg(e)
}

func (s *Servicer) StreamMessage(req *pb.StreamMessageRequest, stream A2A_StreamMessageServer) error {
	taskStream, err := s.TaskManager.StreamMessage(stream.Context(), a2a.MessageSendParams{Message: *messageFromPB(req.Message)})
	if err != nil {
		return toStatusErr(err)
	}
	defer taskStream.Close()

	for {
		select {
		case event, ok := <-taskStream.Events():
			if !ok {
				return nil
			}
			if err := stream.Send(taskEventToPB(event)); err != nil {
				return err
			}
			if event.Final {
				return nil
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func (s *Servicer) GetTask(ctx context.Context, req *pb.GetTaskRequest) (*pb.Task, error) {
	task, err := s.TaskManager.GetTask(ctx, req.ID, int(req.HistoryLength))
	if err != nil {
		return nil, toStatusErr(err)
	}
	return taskToPB(task), nil
}

func (s *Servicer) ListTasks(ctx context.Context, req *pb.ListTasksRequest) (*pb.ListTasksResponse, error) {
	tasks, err := s.TaskManager.ListTasks(ctx, int(req.Limit))
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := make([]*pb.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToPB(t))
	}
	return &pb.ListTasksResponse{Tasks: out}, nil
}

func (s *Servicer) CancelTask(ctx context.Context, req *pb.CancelTaskRequest) (*pb.Task, error) {
	task, err := s.TaskManager.CancelTask(ctx, req.ID)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return taskToPB(task), nil
}

func (s *Servicer) TaskFeedback(ctx context.Context, req *pb.TaskFeedbackRequest) (*pb.Empty, error) {
	var rating *int
	if req.Rating != 0 {
		r := int(req.Rating)
		rating = &r
	}
	if err := s.TaskManager.TaskFeedback(ctx, a2a.TaskFeedbackParams{
		TaskID: req.TaskID, Feedback: req.Feedback, Rating: rating,
	}); err != nil {
		return nil, toStatusErr(err)
	}
	return &pb.Empty{}, nil
}

func (s *Servicer) ListContexts(ctx context.Context, req *pb.ListContextsRequest) (*pb.ListContextsResponse, error) {
	contexts, err := s.TaskManager.ListContexts(ctx, int(req.Limit))
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := make([]*pb.ContextSummary, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, contextSummaryToPB(c))
	}
	return &pb.ListContextsResponse{Contexts: out}, nil
}

func (s *Servicer) ClearContext(ctx context.Context, req *pb.ClearContextRequest) (*pb.Empty, error) {
	if err := s.TaskManager.ClearContext(ctx, req.ContextID); err != nil {
		return nil, toStatusErr(err)
	}
	return &pb.Empty{}, nil
}

func (s *Servicer) SetTaskPushNotification(ctx context.Context, req *pb.SetTaskPushNotificationRequest) (*pb.TaskPushNotificationConfig, error) {
	cfg := a2a.TaskPushNotificationConfig{
		TaskID:                 req.Config.TaskID,
		PushNotificationConfig: pushConfigFromPB(req.Config.PushNotificationConfig),
	}
	result, err := s.TaskManager.SetTaskPushNotification(ctx, cfg)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return taskPushConfigToPB(*result), nil
}

func (s *Servicer) GetTaskPushNotification(ctx context.Context, req *pb.GetTaskPushNotificationRequest) (*pb.TaskPushNotificationConfig, error) {
	cfg, err := s.TaskManager.GetTaskPushNotification(ctx, req.TaskID)
	if err != nil {
		return nil, toStatusErr(err)
	}
	return taskPushConfigToPB(*cfg), nil
}

func (s *Servicer) ListTaskPushNotifications(ctx context.Context, req *pb.ListTaskPushNotificationsRequest) (*pb.ListTaskPushNotificationsResponse, error) {
	cfgs, err := s.TaskManager.ListTaskPushNotifications(ctx, req.TaskID)
	if err != nil {
		return nil, toStatusErr(err)
	}
	out := make([]*pb.TaskPushNotificationConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, taskPushConfigToPB(c))
	}
	return &pb.ListTaskPushNotificationsResponse{Configs: out}, nil
}

func (s *Servicer) DeleteTaskPushNotification(ctx context.Context, req *pb.DeleteTaskPushNotificationRequest) (*pb.Empty, error) {
	if err := s.TaskManager.DeleteTaskPushNotification(ctx, req.TaskID, req.ConfigID); err != nil {
		return nil, toStatusErr(err)
	}
	return &pb.Empty{}, nil
}

func (s *Servicer) HealthCheck(_ context.Context, _ *pb.Empty) (*pb.HealthCheckResponse, error) {
	return &pb.HealthCheckResponse{Running: s.TaskManager.IsRunning()}, nil
}
