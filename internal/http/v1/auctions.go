package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type componentAuctionReq struct {
	Reference   string            `json:"reference"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

type providerAuctionReq struct {
	Reference   string            `json:"reference"`
	LinkName    string            `json:"link_name"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

type auctionResp struct {
	Accepted bool   `json:"accepted"`
	HostID   string `json:"host_id,omitempty"`
}

// auctionComponent handles POST /auctions/component
func (a *API) auctionComponent(w http.ResponseWriter, r *http.Request) {
	var req componentAuctionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, "reference is required", http.StatusBadRequest)
		return
	}

	ok, err := a.Ctrl.AuctionComponent(r.Context(), req.Reference, req.Constraints)
	if err != nil {
		controlError(w, err)
		return
	}
	resp := auctionResp{Accepted: ok}
	if ok {
		resp.HostID = a.Ctrl.HostID()
	}
	writeJSON(w, http.StatusOK, resp)
}

// auctionProvider handles POST /auctions/provider
func (a *API) auctionProvider(w http.ResponseWriter, r *http.Request) {
	var req providerAuctionReq
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

	ok, err := a.Ctrl.AuctionProvider(r.Context(), req.Reference, req.LinkName, req.Constraints)
	if err != nil {
		controlError(w, err)
		return
	}
	resp := auctionResp{Accepted: ok}
	if ok {
		resp.HostID = a.Ctrl.HostID()
	}
	writeJSON(w, http.StatusOK, resp)
}
