// Package models holds the entity types shared by the store, cache,
// orchestrator, and committer. These are semantic types, not storage rows;
// the store package maps them to/from Postgres.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account entity. PasswordHash is never serialized back to a client.
type User struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	Email        string            `json:"email" db:"email"`
	PasswordHash string            `json:"-" db:"password_hash"`
	Profile      map[string]string `json:"profile" db:"-"`
	Subscription SubscriptionFlags `json:"subscription" db:"-"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt" db:"updated_at"`
}

// SubscriptionFlags is returned in the user views and never mutated by billing logic here.
type SubscriptionFlags struct {
	Tier   string `json:"tier"`
	Active bool   `json:"active"`
}

// EmotionEntry is an append-only log entry on a user's emotional log.
type EmotionEntry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Emotion   string    `json:"emotion" db:"emotion"`
	Intensity *int      `json:"intensity,omitempty" db:"intensity"`
	Context   string    `json:"context,omitempty" db:"context"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MemoryRole constrains MemoryMessage.Role.
type MemoryRole string

const (
	RoleUser      MemoryRole = "user"
	RoleAssistant MemoryRole = "assistant"
)

// MemoryMessage is one turn of conversation, owned by UserID.
type MemoryMessage struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"userId" db:"user_id"`
	Role      MemoryRole `json:"role" db:"role"`
	Content   string     `json:"content" db:"content"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is an inferred side-effect dequeued and executed by the task runner.
type Task struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	UserID    uuid.UUID              `json:"userId" db:"user_id"`
	TaskType  string                 `json:"taskType" db:"task_type"`
	Params    map[string]interface{} `json:"parameters" db:"-"`
	Status    TaskStatus             `json:"status" db:"status"`
	Priority  int                    `json:"priority" db:"priority"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
	RunAt     time.Time              `json:"runAt" db:"run_at"`
	Result    string                 `json:"result,omitempty" db:"result"`
}
