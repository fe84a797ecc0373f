package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/repodock/repodock/internal/api"
	"github.com/repodock/repodock/internal/orchestrator"
	"github.com/repodock/repodock/internal/store"
)

const defaultOperationsLimit = 50

// Runtime is the container surface the handlers need.
type Runtime interface {
	DiscoverTargets(ctx context.Context) ([]api.RestartTarget, error)
	RestartByID(ctx context.Context, containerID string) error
}

// Signaler accepts repository-update signals.
type Signaler interface {
	HandleUpdateSignal(ctx context.Context, repositoryName, trigger string) (*api.OperationOutcome, error)
}

// Handler handles HTTP requests for the server.
type Handler struct {
	Registry *Registry
	Signals  Signaler
	Runtime  Runtime
	Store    store.Store
	Logger   *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(registry *Registry, signals Signaler, runtime Runtime, st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		Registry: registry,
		Signals:  signals,
		Runtime:  runtime,
		Store:    st,
		Logger:   logger,
	}
}

// Routes mounts every handler on a fresh sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/webhook/github", h.HandleGitHubWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/repositories", func(r chi.Router) {
			r.Post("/", h.RegisterRepository)
			r.Get("/", h.ListRepositories)
			r.Get("/{name}", h.GetRepository)
			r.Post("/{name}/sync", h.SyncRepository)
			r.Delete("/{name}", h.DeleteRepository)
		})
		r.Route("/containers", func(r chi.Router) {
			r.Get("/", h.ListContainers)
			r.Post("/{id}/restart", h.RestartContainer)
		})
		r.Get("/operations", h.ListOperations)
	})

	return r
}

// HandleGitHubWebhook handles POST /webhook/github. The payload's
// repository name is matched against the registry; pushes to unregistered
// names are rejected without side effects.
func (h *Handler) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	var payload api.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}
	if payload.Repository.Name == "" {
		http.Error(w, "Webhook payload is missing the repository name", http.StatusBadRequest)
		return
	}

	h.signal(w, r, payload.Repository.Name, api.TriggerWebhook)
}

// SyncRepository handles POST /api/v1/repositories/{name}/sync.
func (h *Handler) SyncRepository(w http.ResponseWriter, r *http.Request) {
	h.signal(w, r, chi.URLParam(r, "name"), api.TriggerManual)
}

func (h *Handler) signal(w http.ResponseWriter, r *http.Request, name, trigger string) {
	outcome, err := h.Signals.HandleUpdateSignal(r.Context(), name, trigger)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrUnknownRepository):
			writeSignalError(w, http.StatusNotFound, api.ErrorKindUnknownRepository, err)
		case errors.Is(err, orchestrator.ErrSyncInProgress):
			writeSignalError(w, http.StatusConflict, api.ErrorKindSyncInProgress, err)
		default:
			h.Logger.Error("Failed to process update signal", "repo", name, "trigger", trigger, "error", err)
			http.Error(w, "failed to process update signal", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Update signal processed",
		Data:    outcome,
	})
}

// writeSignalError reports a rejected signal with a machine-readable kind,
// so webhook senders and the CLI can distinguish "not registered" from
// "already syncing" without parsing the message.
func writeSignalError(w http.ResponseWriter, status int, kind string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.APIResponse{
		Message: err.Error(),
		Data:    map[string]string{"error_kind": kind},
	})
}

// RegisterRepository handles POST /api/v1/repositories
func (h *Handler) RegisterRepository(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	repo, err := h.Registry.Add(r.Context(), &req)
	if err != nil {
		if errors.Is(err, store.ErrRepositoryExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository registered successfully",
		Data:    repo,
	})
}

// ListRepositories handles GET /api/v1/repositories
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.Registry.List(r.Context())
	if err != nil {
		h.Logger.Error("Failed to list repositories", "error", err)
		http.Error(w, "failed to list repositories", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(api.APIResponse{
		Data: repos,
	})
}

// GetRepository handles GET /api/v1/repositories/{name}
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	repo, err := h.Registry.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Logger.Error("Failed to load repository", "repo", name, "error", err)
		http.Error(w, "failed to load repository", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Data: repo,
	})
}

// DeleteRepository handles DELETE /api/v1/repositories/{name}
func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Registry.Delete(r.Context(), name); err != nil {
		if errors.Is(err, store.ErrRepositoryNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.Logger.Error("Failed to delete repository", "repo", name, "error", err)
		http.Error(w, "failed to delete repository", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Repository deleted successfully",
	})
}

// ListContainers handles GET /api/v1/containers
func (h *Handler) ListContainers(w http.ResponseWriter, r *http.Request) {
	targets, err := h.Runtime.DiscoverTargets(r.Context())
	if err != nil {
		h.Logger.Error("Failed to list containers", "error", err)
		http.Error(w, "container runtime is unavailable", http.StatusServiceUnavailable)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Data: targets,
	})
}

// RestartContainer handles POST /api/v1/containers/{id}/restart
func (h *Handler) RestartContainer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Runtime.RestartByID(r.Context(), id); err != nil {
		h.Logger.Error("Failed to restart container", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Message: "Container restarted successfully",
	})
}

// ListOperations handles GET /api/v1/operations?limit=N
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	limit := defaultOperationsLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	outcomes, err := h.Store.ListOperations(r.Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list operations", "error", err)
		http.Error(w, "failed to list operations", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(api.APIResponse{
		Data: outcomes,
	})
}
