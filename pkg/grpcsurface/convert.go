package grpcsurface

import (
	"encoding/json"
	"strconv"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/grpcsurface/pb"
)

// Converters below are grounded on bindu's server/grpc/converters.py: every
// domain type that crosses the gRPC boundary gets a pair of pure functions,
// never a method on the domain type itself, so pkg/a2a stays free of any
// wire-format concern.

func partToPB(p a2a.Part) *pb.Part {
	switch p.Type {
	case a2a.PartTypeFile:
		fp := &pb.FilePart{MimeType: p.File.MimeType, Filename: p.File.Name, Metadata: metadataToPB(p.Metadata)}
		if p.File.URI != "" {
			fp.FileID = p.File.URI
		} else {
			fp.FileID = p.File.Bytes
		}
		return &pb.Part{FilePart: fp}
	case a2a.PartTypeData:
		return &pb.Part{DataPart: &pb.DataPart{
			MimeType: p.DataMimeType,
			Data:     marshalData(p.Data),
			Metadata: metadataToPB(p.Metadata),
		}}
	default:
		return &pb.Part{TextPart: &pb.TextPart{
			Text:       p.Text,
			Embeddings: p.Embeddings,
			Metadata:   metadataToPB(p.Metadata),
		}}
	}
}

func partFromPB(p *pb.Part) a2a.Part {
	switch {
	case p.FilePart != nil:
		var part a2a.Part
		if p.FilePart.FileID != "" {
			part = a2a.NewFilePartFromURI(p.FilePart.Filename, p.FilePart.MimeType, p.FilePart.FileID)
		} else {
			part = a2a.NewFilePartFromBytes(p.FilePart.Filename, p.FilePart.MimeType, nil)
		}
		part.Metadata = metadataFromPB(p.FilePart.Metadata)
		return part
	case p.DataPart != nil:
		part := a2a.NewDataPart(p.DataPart.MimeType, unmarshalData(p.DataPart.Data))
		part.Metadata = metadataFromPB(p.DataPart.Metadata)
		return part
	case p.TextPart != nil:
		part := a2a.NewTextPartWithEmbeddings(p.TextPart.Text, p.TextPart.Embeddings)
		part.Metadata = metadataFromPB(p.TextPart.Metadata)
		return part
	default:
		return a2a.NewTextPart("")
	}
}

func partsToPB(parts []a2a.Part) []*pb.Part {
	out := make([]*pb.Part, 0, len(parts))
	for _, p := range parts {
		out = append(out, partToPB(p))
	}
	return out
}

func partsFromPB(parts []*pb.Part) []a2a.Part {
	out := make([]a2a.Part, 0, len(parts))
	for _, p := range parts {
		out = append(out, partFromPB(p))
	}
	return out
}

func messageToPB(m *a2a.Message) *pb.Message {
	if m == nil {
		return nil
	}
	return &pb.Message{
		MessageID:        m.MessageID,
		ContextID:        m.ContextID,
		TaskID:           m.TaskID,
		Role:             m.Role,
		Parts:            partsToPB(m.Parts),
		ReferenceTaskIDs: m.ReferenceTaskIDs,
	}
}

func messageFromPB(m *pb.Message) *a2a.Message {
	if m == nil {
		return nil
	}
	return &a2a.Message{
		MessageID:        m.MessageID,
		ContextID:        m.ContextID,
		TaskID:           m.TaskID,
		Role:             m.Role,
		Kind:             "message",
		Parts:            partsFromPB(m.Parts),
		ReferenceTaskIDs: m.ReferenceTaskIDs,
	}
}

func artifactToPB(a a2a.Artifact) *pb.Artifact {
	return &pb.Artifact{
		ArtifactID:  a.ArtifactID,
		Name:        a.Name,
		Description: a.Description,
		Parts:       partsToPB(a.Parts),
	}
}

func taskStatusToPB(s a2a.TaskStatus) pb.TaskStatus {
	return pb.TaskStatus{
		State:     string(s.State),
		Message:   messageToPB(s.Message),
		Timestamp: s.Timestamp.Unix(),
	}
}

func taskToPB(t *a2a.Task) *pb.Task {
	if t == nil {
		return nil
	}
	artifacts := make([]*pb.Artifact, 0, len(t.Artifacts))
	for _, a := range t.Artifacts {
		artifacts = append(artifacts, artifactToPB(a))
	}
	history := make([]*pb.Message, 0, len(t.History))
	for i := range t.History {
		history = append(history, messageToPB(&t.History[i]))
	}
	return &pb.Task{
		ID:        t.TaskID,
		ContextID: t.ContextID,
		Status:    taskStatusToPB(t.Status),
		Artifacts: artifacts,
		History:   history,
	}
}

func contextSummaryToPB(c a2a.ContextSummary) *pb.ContextSummary {
	return &pb.ContextSummary{
		ContextID: c.ContextID,
		Metadata: map[string]string{
			"task_count":    strconv.Itoa(c.TaskCount),
			"task_ids":      string(marshalData(c.TaskIDs)),
			"last_activity": strconv.FormatInt(c.LastActivity.Unix(), 10),
		},
	}
}

func taskEventToPB(e a2a.TaskEvent) *pb.TaskEvent {
	switch e.Kind {
	case a2a.EventKindArtifactUpdate:
		return &pb.TaskEvent{ArtifactUpdate: &pb.TaskArtifactUpdateEvent{
			TaskID:    e.TaskID,
			ContextID: e.ContextID,
			Artifact:  *artifactToPB(e.Artifact.Artifact),
			Append:    e.Artifact.Append,
			LastChunk: e.Artifact.LastChunk,
		}}
	default:
		return &pb.TaskEvent{StatusUpdate: &pb.TaskStatusUpdateEvent{
			TaskID:    e.TaskID,
			ContextID: e.ContextID,
			Status:    taskStatusToPB(a2a.TaskStatus{State: e.Status.State, Message: e.Status.Message, Timestamp: e.Status.Timestamp}),
			Final:     e.Final,
		}}
	}
}

func pushConfigToPB(cfg a2a.PushNotificationConfig) *pb.PushNotificationConfig {
	return &pb.PushNotificationConfig{ID: cfg.ID, URL: cfg.URL, Token: cfg.Token}
}

func pushConfigFromPB(cfg *pb.PushNotificationConfig) a2a.PushNotificationConfig {
	if cfg == nil {
		return a2a.PushNotificationConfig{}
	}
	return a2a.PushNotificationConfig{ID: cfg.ID, URL: cfg.URL, Token: cfg.Token}
}

func taskPushConfigToPB(cfg a2a.TaskPushNotificationConfig) *pb.TaskPushNotificationConfig {
	return &pb.TaskPushNotificationConfig{
		TaskID:                 cfg.TaskID,
		PushNotificationConfig: pushConfigToPB(cfg.PushNotificationConfig),
	}
}

func marshalData(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalData(b []byte) any {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

// metadataToPB/metadataFromPB bridge a2a.Part's untyped metadata map to the
// wire's map[string]string by JSON-encoding each value, the same
// marshalData/unmarshalData round-trip used for DataPart.Data, so a value
// that crosses the boundary keeps its original JSON type (string, number,
// bool, nested object) rather than collapsing to its string form.
func metadataToPB(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(marshalData(v))
	}
	return out
}

func metadataFromPB(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = unmarshalData([]byte(v))
	}
	return out
}
