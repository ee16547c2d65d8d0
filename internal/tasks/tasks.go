// Package tasks tracks asynchronous control operations so HTTP callers
// can poll for completion instead of holding a request open while a
// workload instantiates.
package tasks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeStartComponent Type = "START_COMPONENT"
	TypeStartProvider  Type = "START_PROVIDER"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Task struct {
	ID         string          `json:"id"`
	HostID     string          `json:"hostId"`
	Type       Type            `json:"type"`
	Params     json.RawMessage `json:"params"`
	Status     Status          `json:"status"`
	Identity   string          `json:"identity,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewManager() *Manager {
	return &Manager{tasks: make(map[string]*Task)}
}

type StartComponentParams struct {
	Reference string `json:"reference,omitempty"`
}

type StartProviderParams struct {
	Reference string `json:"reference,omitempty"`
	LinkName  string `json:"link_name"`
}

// Enqueue records a new queued task and returns it. Params failing to
// marshal is a programming error; the raw params are simply omitted.
func (m *Manager) Enqueue(hostID string, typ Type, params any) *Task {
	raw, _ := json.Marshal(params)
	t := &Task{
		ID:        uuid.NewString(),
		HostID:    hostID,
		Type:      typ,
		Params:    raw,
		Status:    StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
	return t
}

// Get returns a copy so callers cannot race with status updates.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// MarkRunning sets a task to running and stamps StartedAt once.
func (m *Manager) MarkRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		now := time.Now().UTC()
		t.Status = StatusRunning
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	}
}

// MarkSucceeded finishes a task, recording the identity it started.
func (m *Manager) MarkSucceeded(id, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		now := time.Now().UTC()
		t.Status = StatusSucceeded
		t.Identity = identity
		t.FinishedAt = &now
		t.Error = ""
	}
}

// MarkFailed finishes a task with an error message.
func (m *Manager) MarkFailed(id, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		now := time.Now().UTC()
		t.Status = StatusFailed
		t.FinishedAt = &now
		t.Error = errMsg
	}
}
