package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/meshkit/meshhost/internal/control"
)

// getInventory handles GET /inventory
func (a *API) getInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := a.Ctrl.HostInventory(r.Context())
	if err != nil {
		controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type labelsReq struct {
	Labels map[string]string `json:"labels"`
}

// putLabels handles PUT /labels. The label set is replaced wholesale.
func (a *API) putLabels(w http.ResponseWriter, r *http.Request) {
	var req labelsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := a.Ctrl.SetLabels(r.Context(), req.Labels); err != nil {
		controlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, labelsReq{Labels: req.Labels})
}

// checkLink handles POST /links. Link checks are fire-and-forget: a
// provider that is not local, or a failed bind, is not an HTTP error.
func (a *API) checkLink(w http.ResponseWriter, r *http.Request) {
	var ld control.LinkDefinition
	if err := json.NewDecoder(r.Body).Decode(&ld); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if ld.ProviderID == "" || ld.LinkName == "" {
		http.Error(w, "provider_id and link_name are required", http.StatusBadRequest)
		return
	}
	if err := a.Ctrl.CheckLink(r.Context(), ld); err != nil {
		controlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type referenceReq struct {
	Reference string `json:"reference"`
	Identity  string `json:"identity"`
}

type referenceResp struct {
	Updated bool `json:"updated"`
}

// putReference handles POST /references
func (a *API) putReference(w http.ResponseWriter, r *http.Request) {
	var req referenceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Reference == "" || req.Identity == "" {
		http.Error(w, "reference and identity are required", http.StatusBadRequest)
		return
	}
	ok := a.Ctrl.PutReference(r.Context(), req.Reference, req.Identity)
	writeJSON(w, http.StatusOK, referenceResp{Updated: ok})
}
