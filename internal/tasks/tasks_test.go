package tasks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLifecycle(t *testing.T) {
	m := NewManager()

	task := m.Enqueue("Hhost", TypeStartComponent, StartComponentParams{Reference: "oci.example/app:1"})
	require.NotEmpty(t, task.ID)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, "Hhost", task.HostID)

	var p StartComponentParams
	require.NoError(t, json.Unmarshal(task.Params, &p))
	assert.Equal(t, "oci.example/app:1", p.Reference)

	m.MarkRunning(task.ID)
	got, ok := m.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	m.MarkSucceeded(task.ID, "Ccomponent")
	got, _ = m.Get(task.ID)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, "Ccomponent", got.Identity)
	require.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Error)
}

func TestTaskFailure(t *testing.T) {
	m := NewManager()
	task := m.Enqueue("Hhost", TypeStartProvider, StartProviderParams{LinkName: "default"})

	m.MarkFailed(task.ID, "already running")
	got, ok := m.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "already running", got.Error)
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager()
	task := m.Enqueue("Hhost", TypeStartComponent, nil)

	got, _ := m.Get(task.ID)
	got.Status = StatusFailed

	again, _ := m.Get(task.ID)
	assert.Equal(t, StatusQueued, again.Status, "mutating the copy does not touch the tracked task")
}

func TestGetUnknown(t *testing.T) {
	m := NewManager()
	_, ok := m.Get("nope")
	assert.False(t, ok)
}
