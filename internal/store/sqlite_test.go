package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repodock/repodock/internal/api"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "repodock.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testRepository(name string) *api.Repository {
	return &api.Repository{
		Name:           name,
		URL:            "https://github.com/example/" + name + ".git",
		Branch:         "main",
		AuthMethod:     "public",
		IsActive:       true,
		LastSyncStatus: api.SyncStatusNever,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestRepositoryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repo := testRepository("svc-backend")
	require.NoError(t, s.CreateRepository(ctx, repo))

	// Duplicate names are rejected.
	assert.ErrorIs(t, s.CreateRepository(ctx, testRepository("svc-backend")), ErrRepositoryExists)

	got, err := s.GetRepository(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Equal(t, repo.URL, got.URL)
	assert.Equal(t, api.SyncStatusNever, got.LastSyncStatus)
	assert.True(t, got.IsActive)
	assert.True(t, got.LastSyncTime.IsZero())

	require.NoError(t, s.CreateRepository(ctx, testRepository("svc-worker")))
	repos, err := s.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "svc-backend", repos[0].Name)
	assert.Equal(t, "svc-worker", repos[1].Name)

	require.NoError(t, s.DeleteRepository(ctx, "svc-worker"))
	assert.ErrorIs(t, s.DeleteRepository(ctx, "svc-worker"), ErrRepositoryNotFound)

	_, err = s.GetRepository(ctx, "svc-worker")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestUpdateSyncResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRepository(ctx, testRepository("svc-backend")))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateSyncResult(ctx, "svc-backend", api.SyncStatusSuccess, at, "abc123", ""))

	got, err := s.GetRepository(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Equal(t, api.SyncStatusSuccess, got.LastSyncStatus)
	assert.Equal(t, "abc123", got.LastSyncCommit)
	assert.False(t, got.LastSyncTime.IsZero())

	require.NoError(t, s.UpdateSyncResult(ctx, "svc-backend", api.SyncStatusFailure, at, "", "network unreachable"))
	got, err = s.GetRepository(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Equal(t, api.SyncStatusFailure, got.LastSyncStatus)
	assert.Equal(t, "network unreachable", got.LastSyncError)

	assert.ErrorIs(t, s.UpdateSyncResult(ctx, "ghost", api.SyncStatusSuccess, at, "", ""), ErrRepositoryNotFound)
}

func TestRepositoryCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRepository(ctx, testRepository("svc-backend")))

	_, err := s.GetRepositoryCredential(ctx, "svc-backend")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	cred := &RepositoryCredential{
		RepositoryName:      "svc-backend",
		DeployKeyCiphertext: []byte("ciphertext"),
		DeployKeyNonce:      []byte("nonce"),
	}
	require.NoError(t, s.UpsertRepositoryCredential(ctx, cred))

	got, err := s.GetRepositoryCredential(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), got.DeployKeyCiphertext)

	// Upsert replaces in place.
	cred.DeployKeyCiphertext = []byte("rotated")
	require.NoError(t, s.UpsertRepositoryCredential(ctx, cred))
	got, err = s.GetRepositoryCredential(ctx, "svc-backend")
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), got.DeployKeyCiphertext)

	// Deleting the repository cascades to its credential.
	require.NoError(t, s.DeleteRepository(ctx, "svc-backend"))
	_, err = s.GetRepositoryCredential(ctx, "svc-backend")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestOperationLogAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	first := &api.OperationOutcome{
		RepositoryName: "svc-backend",
		Trigger:        api.TriggerWebhook,
		SyncStatus:     api.SyncStatusSuccess,
		Changed:        true,
		CommitHash:     "abc123",
		RestartResults: []api.ContainerRestartResult{
			{ContainerID: "c1", ContainerName: "backend", Success: true},
			{ContainerID: "c2", ContainerName: "worker", Success: false, ErrorDetail: "restart failed"},
		},
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
	}
	require.NoError(t, s.AppendOperation(ctx, first))

	second := &api.OperationOutcome{
		RepositoryName: "svc-worker",
		Trigger:        api.TriggerManual,
		SyncStatus:     api.SyncStatusFailure,
		ErrorKind:      api.ErrorKindNetworkUnreachable,
		ErrorDetail:    "dial tcp: no route to host",
		StartedAt:      started.Add(5 * time.Second),
		CompletedAt:    started.Add(6 * time.Second),
	}
	require.NoError(t, s.AppendOperation(ctx, second))

	outcomes, err := s.ListOperations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	// Newest first.
	assert.Equal(t, "svc-worker", outcomes[0].RepositoryName)
	assert.Equal(t, api.ErrorKindNetworkUnreachable, outcomes[0].ErrorKind)
	assert.Empty(t, outcomes[0].RestartResults)

	assert.Equal(t, "svc-backend", outcomes[1].RepositoryName)
	require.Len(t, outcomes[1].RestartResults, 2)
	assert.True(t, outcomes[1].RestartResults[0].Success)
	assert.Equal(t, "restart failed", outcomes[1].RestartResults[1].ErrorDetail)
	assert.True(t, outcomes[1].Changed)

	limited, err := s.ListOperations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
