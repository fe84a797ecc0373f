package api

import "time"

// Sync statuses recorded on a Repository after each attempt.
const (
	SyncStatusNever   = "never"
	SyncStatusSuccess = "success"
	SyncStatusFailure = "failure"
)

// Triggers that can start an orchestration run.
const (
	TriggerWebhook = "webhook"
	TriggerManual  = "manual"
)

// Error kinds carried on operation outcomes and restart results.
const (
	ErrorKindUnknownRepository    = "unknown_repository"
	ErrorKindSyncInProgress       = "sync_in_progress"
	ErrorKindAuthenticationFailed = "authentication_failed"
	ErrorKindNetworkUnreachable   = "network_unreachable"
	ErrorKindRepositoryNotFound   = "repository_not_found"
	ErrorKindSyncTimeout          = "sync_timeout"
	ErrorKindSyncFailed           = "sync_failed"
	ErrorKindRuntimeUnavailable   = "runtime_unavailable"
	ErrorKindRestartFailed        = "restart_failed"
)

// Repository is a registered Git repository whose pushes drive container
// restarts. Name is the sole key containers reference in restart labels.
type Repository struct {
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	Branch         string    `json:"branch"`
	LocalPath      string    `json:"local_path"`
	AuthMethod     string    `json:"auth_method"`
	IsActive       bool      `json:"is_active"`
	LastSyncStatus string    `json:"last_sync_status"` // never, success, failure
	LastSyncTime   time.Time `json:"last_sync_time"`
	LastSyncCommit string    `json:"last_sync_commit"`
	LastSyncError  string    `json:"last_sync_error"`
	CreatedAt      time.Time `json:"created_at"`
}

// ContainerDescriptor is a runtime-observed container snapshot. It is
// recomputed on every discovery pass and never persisted, because label
// configuration can change between restarts.
type ContainerDescriptor struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	Status string            `json:"status"`
	Labels map[string]string `json:"labels"`
}

// RestartTarget pairs a discovered container with the repository names that
// caused it to match.
type RestartTarget struct {
	Container    ContainerDescriptor `json:"container"`
	Repositories []string            `json:"repositories"`
}

// ContainerRestartResult is the outcome of one restart attempt.
type ContainerRestartResult struct {
	ContainerID   string `json:"container_id"`
	ContainerName string `json:"container_name"`
	Success       bool   `json:"success"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorDetail   string `json:"error_detail,omitempty"`
}

// OperationOutcome is the complete, loggable result of one signal's
// sync-then-restart sequence. It is immutable once handed to the log sink.
type OperationOutcome struct {
	ID             string                   `json:"id"`
	RepositoryName string                   `json:"repository_name"`
	Trigger        string                   `json:"trigger"`
	SyncStatus     string                   `json:"sync_status"`
	Changed        bool                     `json:"changed"`
	CommitHash     string                   `json:"commit_hash,omitempty"`
	ErrorKind      string                   `json:"error_kind,omitempty"`
	ErrorDetail    string                   `json:"error_detail,omitempty"`
	RestartResults []ContainerRestartResult `json:"restart_results"`
	StartedAt      time.Time                `json:"started_at"`
	CompletedAt    time.Time                `json:"completed_at"`
}

// RestartsSucceeded reports whether every attempted restart succeeded.
func (o *OperationOutcome) RestartsSucceeded() bool {
	for _, r := range o.RestartResults {
		if !r.Success {
			return false
		}
	}
	return true
}

// RegisterRepositoryRequest is the payload for repository registration.
type RegisterRepositoryRequest struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Branch     string `json:"branch"`
	AuthMethod string `json:"auth_method"`
	DeployKey  string `json:"deploy_key,omitempty"`
}

// WebhookPayload is the subset of a GitHub push payload the server consumes.
type WebhookPayload struct {
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
	Ref string `json:"ref,omitempty"`
}

// APIResponse is a standard wrapper for API responses.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
