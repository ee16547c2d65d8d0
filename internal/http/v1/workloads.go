package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/tasks"
)

type startComponentReq struct {
	Reference string `json:"reference"`
}

type startProviderReq struct {
	Reference string `json:"reference"`
	LinkName  string `json:"link_name"`
}

type startResp struct {
	Identity  string `json:"identity"`
	Name      string `json:"name,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// startComponent handles POST /components. With ?async=true the start
// runs in the background and a task resource is returned instead.
func (a *API) startComponent(w http.ResponseWriter, r *http.Request) {
	var req startComponentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		t := a.Tasks.Enqueue(a.Ctrl.HostID(), tasks.TypeStartComponent,
			tasks.StartComponentParams{Reference: req.Reference})
		go a.runStartComponent(t.ID, req.Reference)
		w.Header().Set("Location", fmt.Sprintf("/api/v1/tasks/%s", t.ID))
		writeJSON(w, http.StatusAccepted, t)
		return
	}

	identity, name, err := a.doStartComponent(r.Context(), req.Reference)
	if err != nil {
		controlError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResp{Identity: identity, Name: name, Reference: req.Reference})
}

func (a *API) doStartComponent(ctx context.Context, reference string) (identity, name string, err error) {
	payload, cl, err := a.Archives.FetchComponent(ctx, reference)
	if err != nil {
		return "", "", err
	}
	if err := a.Ctrl.StartComponent(ctx, payload, cl, reference); err != nil {
		return "", "", err
	}
	return cl.Subject(), cl.Mesh.Name, nil
}

func (a *API) runStartComponent(taskID, reference string) {
	a.Tasks.MarkRunning(taskID)
	identity, _, err := a.doStartComponent(context.Background(), reference)
	if err != nil {
		a.Log.Warn("async component start failed",
			zap.String("reference", reference), zap.Error(err))
		a.Tasks.MarkFailed(taskID, err.Error())
		return
	}
	a.Tasks.MarkSucceeded(taskID, identity)
}

// stopComponent handles DELETE /components/{ref}. The ref is an identity
// or a URL-escaped reference.
func (a *API) stopComponent(w http.ResponseWriter, r *http.Request) {
	ref := pathRef(r, "ref")
	if ref == "" {
		http.Error(w, "ref is required", http.StatusBadRequest)
		return
	}
	if err := a.Ctrl.StopComponent(r.Context(), ref); err != nil {
		controlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startProvider handles POST /providers.
func (a *API) startProvider(w http.ResponseWriter, r *http.Request) {
	var req startProviderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}
	if req.LinkName == "" {
		req.LinkName = "default"
	}

	if r.URL.Query().Get("async") == "true" {
		t := a.Tasks.Enqueue(a.Ctrl.HostID(), tasks.TypeStartProvider,
			tasks.StartProviderParams{Reference: req.Reference, LinkName: req.LinkName})
		go a.runStartProvider(t.ID, req.Reference, req.LinkName)
		w.Header().Set("Location", fmt.Sprintf("/api/v1/tasks/%s", t.ID))
		writeJSON(w, http.StatusAccepted, t)
		return
	}

	identity, name, err := a.doStartProvider(r.Context(), req.Reference, req.LinkName)
	if err != nil {
		controlError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResp{Identity: identity, Name: name, Reference: req.Reference})
}

func (a *API) doStartProvider(ctx context.Context, reference, linkName string) (identity, name string, err error) {
	payload, cl, err := a.Archives.FetchAndVerify(ctx, reference)
	if err != nil {
		return "", "", err
	}
	if err := a.Ctrl.StartProvider(ctx, payload, cl, linkName, reference); err != nil {
		return "", "", err
	}
	return cl.Subject(), cl.Mesh.Name, nil
}

func (a *API) runStartProvider(taskID, reference, linkName string) {
	a.Tasks.MarkRunning(taskID)
	identity, _, err := a.doStartProvider(context.Background(), reference, linkName)
	if err != nil {
		a.Log.Warn("async provider start failed",
			zap.String("reference", reference), zap.String("link_name", linkName), zap.Error(err))
		a.Tasks.MarkFailed(taskID, err.Error())
		return
	}
	a.Tasks.MarkSucceeded(taskID, identity)
}

// stopProvider handles DELETE /providers/{ref}/{link}. An optional
// contract_id query parameter releases the capability routing subject.
func (a *API) stopProvider(w http.ResponseWriter, r *http.Request) {
	ref := pathRef(r, "ref")
	link := chi.URLParam(r, "link")
	if ref == "" || link == "" {
		http.Error(w, "ref and link are required", http.StatusBadRequest)
		return
	}
	contractID := r.URL.Query().Get("contract_id")
	if err := a.Ctrl.StopProvider(r.Context(), ref, link, contractID); err != nil {
		controlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getTaskStatus handles GET /tasks/{taskId}
func (a *API) getTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskId")
	if id == "" {
		http.Error(w, "taskId is required", http.StatusBadRequest)
		return
	}
	t, ok := a.Tasks.Get(id)
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// pathRef reads a path parameter that may carry an escaped reference.
func pathRef(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if dec, err := url.PathUnescape(raw); err == nil {
		return dec
	}
	return raw
}
