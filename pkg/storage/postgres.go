package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

// PostgresStorage is the relational backend, keyed on a per-agent schema
// derived from the agent's DID (see SanitizeDIDForSchema). No concrete
// database/sql driver is imported here: the host binary registers one
// (e.g. lib/pq or the pgx stdlib adapter) and passes an already-opened
// *sql.DB, per the schema-lifecycle design note that migration tooling is
// an external concern.
type PostgresStorage struct {
	db     *sql.DB
	schema string
}

// NewPostgresStorage wraps an opened *sql.DB, scoping every query to the
// schema derived from did.
func NewPostgresStorage(db *sql.DB, did string) *PostgresStorage {
	return &PostgresStorage{db: db, schema: SanitizeDIDForSchema(did)}
}

func (s *PostgresStorage) table(name string) string {
	return fmt.Sprintf(`"%s"."%s"`, s.schema, name)
}

// EnsureSchema creates the agent's schema and tables if they do not already
// exist. Idempotent; safe to call on every startup.
func (s *PostgresStorage) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, s.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			context_id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			last_activity TIMESTAMPTZ NOT NULL
		)`, s.table("contexts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			task_id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL REFERENCES %s(context_id),
			state TEXT NOT NULL,
			status_message JSONB,
			status_timestamp TIMESTAMPTZ NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'
		)`, s.table("tasks"), s.table("contexts")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES %s(task_id),
			context_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			message JSONB NOT NULL
		)`, s.table("messages"), s.table("tasks")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES %s(task_id),
			artifact_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			parts JSONB NOT NULL,
			metadata JSONB,
			append BOOLEAN NOT NULL,
			last_chunk BOOLEAN NOT NULL
		)`, s.table("artifacts"), s.table("tasks")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES %s(task_id),
			config JSONB NOT NULL
		)`, s.table("push_configs"), s.table("tasks")),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return a2a.ErrInternal("failed to ensure schema %s: %s", s.schema, err)
		}
	}

	log.Info("storage: postgres schema ensured", "schema", s.schema)
	return nil
}

func (s *PostgresStorage) SubmitTask(ctx context.Context, contextID string, message a2a.Message) (*a2a.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	if message.TaskID != "" {
		existing, err := s.loadTaskTx(ctx, tx, message.TaskID)
		if err == nil {
			if existing.ContextID != contextID && contextID != "" {
				return nil, a2a.ErrIdentifierMismatch(
					"message contextId %q does not match task %s's contextId %q",
					contextID, existing.TaskID, existing.ContextID,
				)
			}
			message.TaskID = existing.TaskID
			message.ContextID = existing.ContextID
			if err := s.appendHistoryTx(ctx, tx, existing.TaskID, existing.ContextID, message); err != nil {
				return nil, err
			}
			existing.AppendHistory(message)
			return existing, tx.Commit()
		}
		if ae, ok := a2a.AsError(err); !ok || ae.Kind != a2a.KindNotFound {
			return nil, err
		}
	}

	task := a2a.NewTask(contextID)
	if message.TaskID != "" {
		task.TaskID = message.TaskID
	}
	message.TaskID = task.TaskID
	message.ContextID = task.ContextID

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (context_id, created_at, last_activity) VALUES ($1, $2, $2)
		 ON CONFLICT (context_id) DO UPDATE SET last_activity = $2`, s.table("contexts"),
	), task.ContextID, now); err != nil {
		return nil, a2a.ErrInternal("upsert context: %s", err)
	}

	metadata, _ := json.Marshal(task.Metadata)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (task_id, context_id, state, status_timestamp, metadata)
		 VALUES ($1, $2, $3, $4, $5)`, s.table("tasks"),
	), task.TaskID, task.ContextID, string(task.Status.State), task.Status.Timestamp, metadata); err != nil {
		return nil, a2a.ErrInternal("insert task: %s", err)
	}

	if err := s.appendHistoryTx(ctx, tx, task.TaskID, task.ContextID, message); err != nil {
		return nil, err
	}

	return task, tx.Commit()
}

func (s *PostgresStorage) loadTaskTx(ctx context.Context, tx *sql.Tx, taskID string) (*a2a.Task, error) {
	var (
		contextID       string
		state           string
		statusMessage   []byte
		statusTimestamp time.Time
		metadata        []byte
	)

	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT context_id, state, status_message, status_timestamp, metadata
		 FROM %s WHERE task_id = $1`, s.table("tasks"),
	), taskID)

	if err := row.Scan(&contextID, &state, &statusMessage, &statusTimestamp, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, a2a.ErrNotFound("task %s not found", taskID)
		}
		return nil, a2a.ErrInternal("load task %s: %s", taskID, err)
	}

	task := &a2a.Task{
		TaskID:    taskID,
		ContextID: contextID,
		Kind:      "task",
		Status: a2a.TaskStatus{
			State:     a2a.TaskState(state),
			Timestamp: statusTimestamp,
		},
	}
	if len(statusMessage) > 0 {
		var msg a2a.Message
		if err := json.Unmarshal(statusMessage, &msg); err == nil {
			task.Status.Message = &msg
		}
	}
	json.Unmarshal(metadata, &task.Metadata)

	if err := s.loadArtifactsTx(ctx, tx, task); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT message FROM %s WHERE task_id = $1 ORDER BY seq ASC`, s.table("messages"),
	), taskID)
	if err != nil {
		return nil, a2a.ErrInternal("load history for task %s: %s", taskID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, a2a.ErrInternal("scan history for task %s: %s", taskID, err)
		}
		var msg a2a.Message
		if err := json.Unmarshal(raw, &msg); err == nil {
			task.History = append(task.History, msg)
		}
	}

	return task, nil
}

// loadArtifactsTx reassembles the task's artifacts from their chunk rows:
// rows are replayed in insertion order, an append=false row replacing (or
// creating) the artifact and an append=true row merging its parts into it,
// the same delta semantics the worker emitted them with.
func (s *PostgresStorage) loadArtifactsTx(ctx context.Context, tx *sql.Tx, task *a2a.Task) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT artifact_id, name, description, parts, metadata, append
		 FROM %s WHERE task_id = $1 ORDER BY id ASC`, s.table("artifacts"),
	), task.TaskID)
	if err != nil {
		return a2a.ErrInternal("load artifacts for task %s: %s", task.TaskID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			artifactID  string
			name        string
			description string
			rawParts    []byte
			rawMetadata []byte
			appendChunk bool
		)
		if err := rows.Scan(&artifactID, &name, &description, &rawParts, &rawMetadata, &appendChunk); err != nil {
			return a2a.ErrInternal("scan artifact chunk for task %s: %s", task.TaskID, err)
		}

		var parts []a2a.Part
		if err := json.Unmarshal(rawParts, &parts); err != nil {
			return a2a.ErrInternal("decode artifact chunk for task %s: %s", task.TaskID, err)
		}

		if appendChunk {
			task.MergeArtifact(artifactID, parts)
			continue
		}

		artifact := a2a.Artifact{
			ArtifactID:  artifactID,
			Name:        name,
			Description: description,
			Parts:       parts,
		}
		if len(rawMetadata) > 0 {
			json.Unmarshal(rawMetadata, &artifact.Metadata)
		}
		task.AddArtifact(artifact)
	}

	return nil
}

func (s *PostgresStorage) LoadTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	task, err := s.loadTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	return task, tx.Commit()
}

func (s *PostgresStorage) ListTasks(ctx context.Context, limit int) ([]*a2a.Task, error) {
	query := fmt.Sprintf(`SELECT task_id FROM %s ORDER BY status_timestamp DESC`, s.table("tasks"))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, a2a.ErrInternal("list tasks: %s", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, a2a.ErrInternal("scan task id: %s", err)
		}
		ids = append(ids, id)
	}

	out := make([]*a2a.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.LoadTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

func (s *PostgresStorage) UpdateTaskStatus(ctx context.Context, taskID string, state a2a.TaskState, message *a2a.Message) (*a2a.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	task, err := s.loadTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.ToStatus(state, message); err != nil {
		return nil, err
	}

	var statusMessage []byte
	if message != nil {
		statusMessage, _ = json.Marshal(message)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET state = $1, status_message = $2, status_timestamp = $3 WHERE task_id = $4`, s.table("tasks"),
	), string(task.Status.State), statusMessage, task.Status.Timestamp, taskID); err != nil {
		return nil, a2a.ErrInternal("update task status: %s", err)
	}

	return task, tx.Commit()
}

// UpdateTaskMetadata merges metadata into the task's stored metadata JSONB,
// read-modify-write within a transaction to avoid racing concurrent writers.
func (s *PostgresStorage) UpdateTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	task, err := s.loadTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if task.Metadata == nil {
		task.Metadata = make(map[string]any)
	}
	for k, v := range metadata {
		task.Metadata[k] = v
	}

	encoded, err := json.Marshal(task.Metadata)
	if err != nil {
		return a2a.ErrInternal("marshal task metadata: %s", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET metadata = $1 WHERE task_id = $2`, s.table("tasks"),
	), encoded, taskID); err != nil {
		return a2a.ErrInternal("update task metadata: %s", err)
	}

	return tx.Commit()
}

func (s *PostgresStorage) AppendArtifact(ctx context.Context, taskID string, delta ArtifactDelta) (*a2a.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	task, err := s.loadTaskTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	if delta.Append {
		task.MergeArtifact(delta.Artifact.ArtifactID, delta.Artifact.Parts)
	} else {
		task.AddArtifact(delta.Artifact)
	}
	for _, artifact := range task.Artifacts {
		if artifact.ArtifactID == delta.Artifact.ArtifactID && artifactByteSize(artifact) > MaxArtifactBytes {
			return nil, a2a.ErrInvalidArgument("artifact %s exceeds max size of %d bytes", artifact.ArtifactID, MaxArtifactBytes)
		}
	}

	parts, err := json.Marshal(delta.Artifact.Parts)
	if err != nil {
		return nil, a2a.ErrInternal("marshal artifact parts: %s", err)
	}
	var metadata []byte
	if delta.Artifact.Metadata != nil {
		metadata, _ = json.Marshal(delta.Artifact.Metadata)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (task_id, artifact_id, name, description, parts, metadata, append, last_chunk)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table("artifacts"),
	), taskID, delta.Artifact.ArtifactID, delta.Artifact.Name, delta.Artifact.Description, parts, metadata, delta.Append, delta.LastChunk); err != nil {
		return nil, a2a.ErrInternal("insert artifact chunk: %s", err)
	}

	return task, tx.Commit()
}

func (s *PostgresStorage) appendHistoryTx(ctx context.Context, tx *sql.Tx, taskID, contextID string, message a2a.Message) error {
	var count int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT count(*) FROM %s WHERE task_id = $1`, s.table("messages"),
	), taskID).Scan(&count); err != nil {
		return a2a.ErrInternal("count history: %s", err)
	}
	if count >= MaxHistoryLength {
		return a2a.ErrInvalidArgument("task %s history exceeds max length of %d", taskID, MaxHistoryLength)
	}

	raw, err := json.Marshal(message)
	if err != nil {
		return a2a.ErrInternal("marshal message: %s", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (task_id, context_id, seq, message) VALUES ($1, $2, $3, $4)`, s.table("messages"),
	), taskID, contextID, count, raw); err != nil {
		return a2a.ErrInternal("insert history: %s", err)
	}

	return nil
}

func (s *PostgresStorage) AppendHistory(ctx context.Context, taskID string, message a2a.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	task, err := s.loadTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if err := s.appendHistoryTx(ctx, tx, taskID, task.ContextID, message); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET last_activity = $1 WHERE context_id = $2`, s.table("contexts"),
	), time.Now().UTC(), task.ContextID); err != nil {
		return a2a.ErrInternal("touch context: %s", err)
	}

	return tx.Commit()
}

func (s *PostgresStorage) ListContexts(ctx context.Context, limit int) ([]a2a.ContextSummary, error) {
	query := fmt.Sprintf(`SELECT context_id, last_activity FROM %s ORDER BY last_activity DESC`, s.table("contexts"))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, a2a.ErrInternal("list contexts: %s", err)
	}
	defer rows.Close()

	var out []a2a.ContextSummary
	for rows.Next() {
		var summary a2a.ContextSummary
		if err := rows.Scan(&summary.ContextID, &summary.LastActivity); err != nil {
			return nil, a2a.ErrInternal("scan context: %s", err)
		}

		taskRows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT task_id FROM %s WHERE context_id = $1`, s.table("tasks"),
		), summary.ContextID)
		if err != nil {
			return nil, a2a.ErrInternal("list tasks for context: %s", err)
		}
		for taskRows.Next() {
			var id string
			if err := taskRows.Scan(&id); err == nil {
				summary.TaskIDs = append(summary.TaskIDs, id)
			}
		}
		taskRows.Close()
		summary.TaskCount = len(summary.TaskIDs)

		out = append(out, summary)
	}
	return out, nil
}

// ClearContext deletes tasks, messages, artifacts and push configs bound to
// contextID in one transaction (invariant 6).
func (s *PostgresStorage) ClearContext(ctx context.Context, contextID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return a2a.ErrInternal("begin transaction: %s", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE context_id = $1)`, s.table("contexts"),
	), contextID).Scan(&exists); err != nil {
		return a2a.ErrInternal("check context exists: %s", err)
	}
	if !exists {
		return a2a.ErrNotFound("context %s not found", contextID)
	}

	stmts := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE task_id IN (SELECT task_id FROM %s WHERE context_id = $1)`, s.table("push_configs"), s.table("tasks")),
		fmt.Sprintf(`DELETE FROM %s WHERE task_id IN (SELECT task_id FROM %s WHERE context_id = $1)`, s.table("artifacts"), s.table("tasks")),
		fmt.Sprintf(`DELETE FROM %s WHERE context_id = $1`, s.table("messages")),
		fmt.Sprintf(`DELETE FROM %s WHERE context_id = $1`, s.table("tasks")),
		fmt.Sprintf(`DELETE FROM %s WHERE context_id = $1`, s.table("contexts")),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, contextID); err != nil {
			return a2a.ErrInternal("clear context: %s", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStorage) SetPushConfig(ctx context.Context, cfg a2a.TaskPushNotificationConfig) error {
	if cfg.PushNotificationConfig.ID == "" {
		cfg.PushNotificationConfig.ID = a2a.NewID()
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return a2a.ErrInternal("marshal push config: %s", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, task_id, config) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET config = $3`, s.table("push_configs"),
	), cfg.PushNotificationConfig.ID, cfg.TaskID, raw)
	if err != nil {
		return a2a.ErrInternal("set push config: %s", err)
	}
	return nil
}

func (s *PostgresStorage) GetPushConfig(ctx context.Context, taskID string) (*a2a.TaskPushNotificationConfig, error) {
	configs, err := s.ListPushConfigs(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, a2a.ErrNotFound("no push config for task %s", taskID)
	}
	return &configs[0], nil
}

func (s *PostgresStorage) ListPushConfigs(ctx context.Context, taskID string) ([]a2a.TaskPushNotificationConfig, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT config FROM %s WHERE task_id = $1`, s.table("push_configs"),
	), taskID)
	if err != nil {
		return nil, a2a.ErrInternal("list push configs: %s", err)
	}
	defer rows.Close()

	var out []a2a.TaskPushNotificationConfig
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, a2a.ErrInternal("scan push config: %s", err)
		}
		var cfg a2a.TaskPushNotificationConfig
		if err := json.Unmarshal(raw, &cfg); err == nil {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *PostgresStorage) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE task_id = $1 AND id = $2`, s.table("push_configs"),
	), taskID, configID)
	if err != nil {
		return a2a.ErrInternal("delete push config: %s", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return a2a.ErrNotFound("push config %s not found for task %s", configID, taskID)
	}
	return nil
}
