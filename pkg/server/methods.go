package server

import (
	"context"
	"encoding/json"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/jsonrpc"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
)

// registerMethods binds every method in spec §4.5's table except
// message/stream, which server.go diverts to the SSE broker before it ever
// reaches the jsonrpc.Server router.
func registerMethods(rpc *jsonrpc.Server, tm *taskmanager.TaskManager) {
	rpc.Register("message/send", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.MessageSendParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid message/send params: %s", err)
		}
		return tm.SendMessage(ctx, params)
	})

	rpc.Register("tasks/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskQueryParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/get params: %s", err)
		}
		historyLength := 0
		if params.HistoryLength != nil {
			historyLength = *params.HistoryLength
		}
		return tm.GetTask(ctx, params.ID, historyLength)
	})

	rpc.Register("tasks/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskListParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/list params: %s", err)
		}
		limit := 0
		if params.Limit != nil {
			limit = *params.Limit
		}
		tasks, err := tm.ListTasks(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tasks": tasks}, nil
	})

	rpc.Register("tasks/cancel", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskIDParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/cancel params: %s", err)
		}
		return tm.CancelTask(ctx, params.ID)
	})

	rpc.Register("tasks/feedback", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskFeedbackParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/feedback params: %s", err)
		}
		if err := tm.TaskFeedback(ctx, params); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})

	rpc.Register("contexts/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskListParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid contexts/list params: %s", err)
		}
		limit := 0
		if params.Limit != nil {
			limit = *params.Limit
		}
		contexts, err := tm.ListContexts(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"contexts": contexts}, nil
	})

	rpc.Register("contexts/clear", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.ContextIDParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid contexts/clear params: %s", err)
		}
		if err := tm.ClearContext(ctx, params.ContextID); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})

	rpc.Register("tasks/pushNotification/set", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var cfg a2a.TaskPushNotificationConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/pushNotification/set params: %s", err)
		}
		return tm.SetTaskPushNotification(ctx, cfg)
	})

	rpc.Register("tasks/pushNotification/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskIDParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/pushNotification/get params: %s", err)
		}
		return tm.GetTaskPushNotification(ctx, params.ID)
	})

	rpc.Register("tasks/pushNotificationConfig/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskIDParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/pushNotificationConfig/list params: %s", err)
		}
		configs, err := tm.ListTaskPushNotifications(ctx, params.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"configs": configs}, nil
	})

	rpc.Register("tasks/pushNotificationConfig/delete", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params a2a.TaskPushNotificationConfigParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, a2a.ErrInvalidArgument("invalid tasks/pushNotificationConfig/delete params: %s", err)
		}
		if err := tm.DeleteTaskPushNotification(ctx, params.TaskID, params.ConfigID); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	})
}
