package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initTaskSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			request TEXT NOT NULL,
			workspace_root TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			current_step_index INTEGER NOT NULL DEFAULT 0,
			total_steps INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			max_retries INTEGER NOT NULL DEFAULT 0,
			timeout_ms BIGINT NOT NULL DEFAULT 0,
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NULL,
			completed_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS task_steps (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			chunk_seq INTEGER NOT NULL,
			step_index INTEGER NOT NULL,
			description TEXT NOT NULL,
			action_kind TEXT NOT NULL DEFAULT '',
			step_group TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			output TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NULL,
			ended_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_steps_task_index ON task_steps (task_id, step_index);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, task Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (
			id, agent_id, request, workspace_root, priority, status, progress,
			current_step_index, total_steps, retry_count, max_retries, timeout_ms,
			result, error, error_code, created_at, updated_at, started_at, completed_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
		)
		ON CONFLICT (id) DO UPDATE SET
			agent_id=EXCLUDED.agent_id,
			request=EXCLUDED.request,
			workspace_root=EXCLUDED.workspace_root,
			priority=EXCLUDED.priority,
			status=EXCLUDED.status,
			progress=EXCLUDED.progress,
			current_step_index=EXCLUDED.current_step_index,
			total_steps=EXCLUDED.total_steps,
			retry_count=EXCLUDED.retry_count,
			max_retries=EXCLUDED.max_retries,
			timeout_ms=EXCLUDED.timeout_ms,
			result=EXCLUDED.result,
			error=EXCLUDED.error,
			error_code=EXCLUDED.error_code,
			created_at=EXCLUDED.created_at,
			updated_at=EXCLUDED.updated_at,
			started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at`,
		task.ID,
		task.AgentID,
		task.Request,
		task.WorkspaceRoot,
		string(task.Priority),
		string(task.Status),
		task.Progress,
		task.CurrentStepIndex,
		task.TotalSteps,
		task.RetryCount,
		task.MaxRetries,
		task.TimeoutMS,
		task.Result,
		task.Error,
		task.ErrorCode,
		task.CreatedAt,
		task.UpdatedAt,
		task.StartedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM task_steps WHERE task_id=$1`, task.ID); err != nil {
		return fmt.Errorf("delete prior steps: %w", err)
	}

	for _, chunk := range task.Chunks {
		for _, step := range chunk.Steps {
			_, err := tx.Exec(ctx,
				`INSERT INTO task_steps (
					id, task_id, chunk_seq, step_index, description, action_kind,
					step_group, status, attempts, output, error, started_at, ended_at
				) VALUES (
					$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
				)`,
				step.ID,
				task.ID,
				chunk.Seq,
				step.Index,
				step.Description,
				step.ActionKind,
				step.Group,
				string(step.Status),
				step.Attempts,
				step.Output,
				step.Error,
				step.StartedAt,
				step.EndedAt,
			)
			if err != nil {
				return fmt.Errorf("insert task step: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_id, request, workspace_root, priority, status, progress,
		        current_step_index, total_steps, retry_count, max_retries, timeout_ms,
		        result, error, error_code, created_at, updated_at, started_at, completed_at
		   FROM tasks WHERE id=$1`,
		taskID,
	)
	task, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Task{}, ErrStoreNotFound
		}
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	task.Chunks, err = s.loadChunks(ctx, task.ID)
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, request, workspace_root, priority, status, progress,
		        current_step_index, total_steps, retry_count, max_retries, timeout_ms,
		        result, error, error_code, created_at, updated_at, started_at, completed_at
		   FROM tasks ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	return out, nil
}

// loadChunks reconstructs the chunk layout from the flattened step rows.
func (s *PostgresStore) loadChunks(ctx context.Context, taskID string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chunk_seq, step_index, description, action_kind, step_group,
		        status, attempts, output, error, started_at, ended_at
		   FROM task_steps WHERE task_id=$1 ORDER BY step_index ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task steps: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			step            Step
			chunkSeq        int
			status          string
			startedNullable *time.Time
			endedNullable   *time.Time
		)
		if err := rows.Scan(
			&step.ID,
			&chunkSeq,
			&step.Index,
			&step.Description,
			&step.ActionKind,
			&step.Group,
			&status,
			&step.Attempts,
			&step.Output,
			&step.Error,
			&startedNullable,
			&endedNullable,
		); err != nil {
			return nil, fmt.Errorf("scan task step: %w", err)
		}
		step.TaskID = taskID
		step.Status = StepStatus(status)
		step.StartedAt = startedNullable
		step.EndedAt = endedNullable

		if len(chunks) == 0 || chunks[len(chunks)-1].Seq != chunkSeq {
			chunks = append(chunks, Chunk{TaskID: taskID, Seq: chunkSeq, Status: ChunkStatusCompleted})
		}
		last := &chunks[len(chunks)-1]
		last.Steps = append(last.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task step rows: %w", err)
	}
	return chunks, nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task              Task
		priority          string
		status            string
		startedNullable   *time.Time
		completedNullable *time.Time
	)
	if err := row.Scan(
		&task.ID,
		&task.AgentID,
		&task.Request,
		&task.WorkspaceRoot,
		&priority,
		&status,
		&task.Progress,
		&task.CurrentStepIndex,
		&task.TotalSteps,
		&task.RetryCount,
		&task.MaxRetries,
		&task.TimeoutMS,
		&task.Result,
		&task.Error,
		&task.ErrorCode,
		&task.CreatedAt,
		&task.UpdatedAt,
		&startedNullable,
		&completedNullable,
	); err != nil {
		return Task{}, err
	}
	task.Priority = Priority(priority)
	task.Status = TaskStatus(status)
	task.StartedAt = startedNullable
	task.CompletedAt = completedNullable
	return task, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
