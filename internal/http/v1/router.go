// Package v1 is the REST control surface: auctions, workload lifecycle,
// links, and host inventory.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	openapi "github.com/meshkit/meshhost/api/openapi"
	"github.com/meshkit/meshhost/internal/archive"
	"github.com/meshkit/meshhost/internal/control"
	"github.com/meshkit/meshhost/internal/tasks"
)

// API holds the collaborators the v1 handlers need.
type API struct {
	Ctrl     *control.Controller
	Archives *archive.Service
	Tasks    *tasks.Manager
	Log      *zap.Logger
}

func NewAPI(ctrl *control.Controller, archives *archive.Service, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		Ctrl:     ctrl,
		Archives: archives,
		Tasks:    tasks.NewManager(),
		Log:      log,
	}
}

// Router returns the chi.Router for REST API v1.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	// Docs (Swagger UI) and spec under the versioned prefix
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/api/v1/openapi.yaml"),
	))
	r.Get("/openapi.yaml", serveOpenAPIStaticAsset)

	// Auctions
	r.Post("/auctions/component", a.auctionComponent)
	r.Post("/auctions/provider", a.auctionProvider)

	// Workload lifecycle
	r.Post("/components", a.startComponent)
	r.Delete("/components/{ref}", a.stopComponent)
	r.Post("/providers", a.startProvider)
	r.Delete("/providers/{ref}/{link}", a.stopProvider)

	// Host state
	r.Get("/inventory", a.getInventory)
	r.Put("/labels", a.putLabels)
	r.Post("/links", a.checkLink)
	r.Post("/references", a.putReference)

	// Async operation status
	r.Get("/tasks/{taskId}", a.getTaskStatus)

	return r
}

func serveOpenAPIStaticAsset(w http.ResponseWriter, r *http.Request) {
	data, err := openapi.FS.ReadFile("v1/meshhost.yaml")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read spec: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// controlError maps controller sentinels onto HTTP statuses.
func controlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, control.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, control.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, control.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
