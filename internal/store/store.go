// Package store is the Postgres-backed persistence layer for users, memory
// messages, emotion entries, and tasks, adapted from the teacher repo's
// internal/db connection-pool pattern and internal/auth query style.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dorianinnovations/Server/internal/apperr"
	"github.com/dorianinnovations/Server/internal/config"
	"github.com/dorianinnovations/Server/internal/models"
	"github.com/dorianinnovations/Server/internal/resilience"
)

// taskRow mirrors the tasks table for scanning; parameters are stored as
// JSON and converted to/from models.Task.Params at the boundary.
type taskRow struct {
	ID         uuid.UUID         `db:"id"`
	UserID     uuid.UUID         `db:"user_id"`
	TaskType   string            `db:"task_type"`
	Parameters []byte            `db:"parameters"`
	Status     models.TaskStatus `db:"status"`
	Priority   int               `db:"priority"`
	CreatedAt  time.Time         `db:"created_at"`
	RunAt      time.Time         `db:"run_at"`
	Result     sql.NullString    `db:"result"`
}

func (r taskRow) toModel() models.Task {
	var params map[string]interface{}
	if len(r.Parameters) > 0 {
		_ = json.Unmarshal(r.Parameters, &params)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return models.Task{
		ID:        r.ID,
		UserID:    r.UserID,
		TaskType:  r.TaskType,
		Params:    params,
		Status:    r.Status,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
		RunAt:     r.RunAt,
		Result:    r.Result.String,
	}
}

func marshalParams(params map[string]interface{}) ([]byte, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	return json.Marshal(params)
}

// Store owns the connection pool and exposes the entity operations the
// orchestrator, committer, and task runner depend on.
type Store struct {
	db      *sqlx.DB
	logger  *zap.Logger
	breaker *resilience.Breaker
}

// Open connects to Postgres with a bounded pool, matching the teacher's
// internal/db.NewClient defaults (25 max / 5 idle / 5m lifetime).
func Open(cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	rawDB.SetMaxOpenConns(25)
	rawDB.SetMaxIdleConns(5)
	rawDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := sqlx.NewDb(rawDB, "postgres")
	return &Store{
		db:      db,
		logger:  logger,
		breaker: resilience.New("postgres", resilience.DefaultConfig(), logger),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.breaker.Execute(ctx, func() error { return s.db.PingContext(ctx) })
}

// --- Users ---------------------------------------------------------------

// CreateUser inserts a user row with a lower-cased, unique email.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	u := &models.User{
		ID:           uuid.New(),
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		Profile:      map[string]string{},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	err := s.breaker.Execute(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO users (id, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by lower-cased email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.breaker.Execute(ctx, func() error {
		return s.db.GetContext(ctx, &u, `
			SELECT id, email, password_hash, created_at, updated_at
			FROM users WHERE email = $1`, normalizeEmail(email))
	})
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindUserNotFound, "no user with that email")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if err := s.loadProfile(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser loads a user by id, including profile fields.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.breaker.Execute(ctx, func() error {
		return s.db.GetContext(ctx, &u, `
			SELECT id, email, password_hash, created_at, updated_at
			FROM users WHERE id = $1`, id)
	})
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindUserNotFound, "no user with that id")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.loadProfile(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) loadProfile(ctx context.Context, u *models.User) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM user_profile WHERE user_id = $1`, u.ID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	defer rows.Close()
	u.Profile = map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scan profile row: %w", err)
		}
		u.Profile[k] = v
	}
	return rows.Err()
}

// --- Emotional log ---------------------------------------------------------

// AppendEmotion appends an entry to a user's emotional log. intensity, when
// non-nil, must already be clamped to [1,10] by the caller (C1 does this).
func (s *Store) AppendEmotion(ctx context.Context, userID uuid.UUID, emotion string, intensity *int, emoContext string) (*models.EmotionEntry, error) {
	e := &models.EmotionEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Emotion:   emotion,
		Intensity: intensity,
		Context:   emoContext,
		CreatedAt: time.Now(),
	}
	err := s.breaker.Execute(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO emotion_log (id, user_id, emotion, intensity, context, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.UserID, e.Emotion, e.Intensity, e.Context, e.CreatedAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("append emotion: %w", err)
	}
	return e, nil
}

// RecentEmotions returns the n most recent emotion entries, newest first.
func (s *Store) RecentEmotions(ctx context.Context, userID uuid.UUID, n int) ([]models.EmotionEntry, error) {
	var out []models.EmotionEntry
	err := s.breaker.Execute(ctx, func() error {
		return s.db.SelectContext(ctx, &out, `
			SELECT id, user_id, emotion, intensity, context, created_at
			FROM emotion_log WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2`, userID, n)
	})
	if err != nil {
		return nil, fmt.Errorf("recent emotions: %w", err)
	}
	return out, nil
}

// --- Memory ----------------------------------------------------------------

// AppendMemoryPair appends the user turn then the assistant turn in one batch,
// preserving the order spec.md's Memory pairing invariant requires.
func (s *Store) AppendMemoryPair(ctx context.Context, userID uuid.UUID, userContent, assistantContent string) error {
	now := time.Now()
	return s.breaker.Execute(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_messages (id, user_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), userID, models.RoleUser, userContent, now); err != nil {
			return fmt.Errorf("insert user memory: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO memory_messages (id, user_id, role, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), userID, models.RoleAssistant, assistantContent, now.Add(time.Millisecond)); err != nil {
			return fmt.Errorf("insert assistant memory: %w", err)
		}
		return tx.Commit()
	})
}

// RecentMemory returns the n most recent memory messages, most-recent-first,
// within the ~24h retention window. Callers needing chronological order
// reverse the slice (spec.md §3, §4.4).
func (s *Store) RecentMemory(ctx context.Context, userID uuid.UUID, n int) ([]models.MemoryMessage, error) {
	var out []models.MemoryMessage
	cutoff := time.Now().Add(-24 * time.Hour)
	err := s.breaker.Execute(ctx, func() error {
		return s.db.SelectContext(ctx, &out, `
			SELECT id, user_id, role, content, created_at
			FROM memory_messages
			WHERE user_id = $1 AND created_at >= $2
			ORDER BY created_at DESC LIMIT $3`, userID, cutoff, n)
	})
	if err != nil {
		return nil, fmt.Errorf("recent memory: %w", err)
	}
	return out, nil
}

// PurgeExpiredMemory deletes memory entries past the retention TTL. Intended
// to be called periodically by an operator-scheduled job; not itself
// scheduled by this package.
func (s *Store) PurgeExpiredMemory(ctx context.Context, ttl time.Duration) (int64, error) {
	var n int64
	err := s.breaker.Execute(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx, `DELETE FROM memory_messages WHERE created_at < $1`, time.Now().Add(-ttl))
		if execErr != nil {
			return execErr
		}
		n, execErr = res.RowsAffected()
		return execErr
	})
	return n, err
}

// --- Tasks -------------------------------------------------------------

// CreateTask creates a queued task with the given parameters and priority.
func (s *Store) CreateTask(ctx context.Context, userID uuid.UUID, taskType string, params map[string]interface{}, priority int) (*models.Task, error) {
	t := &models.Task{
		ID:        uuid.New(),
		UserID:    userID,
		TaskType:  taskType,
		Params:    params,
		Status:    models.TaskQueued,
		Priority:  priority,
		CreatedAt: time.Now(),
		RunAt:     time.Now(),
	}
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("marshal task params: %w", err)
	}
	err = s.breaker.Execute(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, user_id, task_type, parameters, status, priority, created_at, run_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.UserID, t.TaskType, paramsJSON, t.Status, t.Priority, t.CreatedAt, t.RunAt)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// DequeueTasks selects up to k queued, due tasks ordered by priority desc,
// createdAt asc, and atomically marks each `processing` via compare-and-set
// on the prior status (spec.md §4.11).
func (s *Store) DequeueTasks(ctx context.Context, k int) ([]models.Task, error) {
	var rows []taskRow
	err := s.breaker.Execute(ctx, func() error {
		return s.db.SelectContext(ctx, &rows, `
			SELECT id, user_id, task_type, parameters, status, priority, created_at, run_at, result
			FROM tasks
			WHERE status = $1 AND run_at <= now()
			ORDER BY priority DESC, created_at ASC
			LIMIT $2`, models.TaskQueued, k)
	})
	if err != nil {
		return nil, fmt.Errorf("select candidate tasks: %w", err)
	}
	candidates := make([]models.Task, len(rows))
	for i, r := range rows {
		candidates[i] = r.toModel()
	}

	claimed := make([]models.Task, 0, len(candidates))
	for _, t := range candidates {
		var rowsAffected int64
		err := s.breaker.Execute(ctx, func() error {
			res, execErr := s.db.ExecContext(ctx, `
				UPDATE tasks SET status = $1 WHERE id = $2 AND status = $3`,
				models.TaskProcessing, t.ID, models.TaskQueued)
			if execErr != nil {
				return execErr
			}
			rowsAffected, execErr = res.RowsAffected()
			return execErr
		})
		if err != nil {
			s.logger.Warn("claim task failed", zap.String("task_id", t.ID.String()), zap.Error(err))
			continue
		}
		if rowsAffected == 1 {
			t.Status = models.TaskProcessing
			claimed = append(claimed, t)
		}
	}
	return claimed, nil
}

// FinishTask transitions a task to completed or failed with a result string.
func (s *Store) FinishTask(ctx context.Context, id uuid.UUID, status models.TaskStatus, result string) error {
	return s.breaker.Execute(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `
			UPDATE tasks SET status = $1, result = $2 WHERE id = $3`, status, result, id)
		return execErr
	})
}

func normalizeEmail(email string) string {
	out := make([]rune, 0, len(email))
	for _, r := range email {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}
