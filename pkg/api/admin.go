package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gt8004/gt8004-go/pkg/storage"
	"github.com/gt8004/gt8004-go/pkg/transport"
)

// Shipper is the delivery side the admin API reports on.
type Shipper interface {
	Stats() transport.Stats
	Flush(ctx context.Context) error
}

// AdminAPI provides endpoints for inspecting the agent's captured traffic
type AdminAPI struct {
	shipper  Shipper
	store    storage.Store
	adminKey string // Simple admin authentication
}

// NewAdminAPI creates a new admin API handler. store may be nil when the
// archive is disabled.
func NewAdminAPI(shipper Shipper, store storage.Store, adminKey string) *AdminAPI {
	return &AdminAPI{
		shipper:  shipper,
		store:    store,
		adminKey: adminKey,
	}
}

// RegisterRoutes registers admin endpoints
func (api *AdminAPI) RegisterRoutes(mux *http.ServeMux) {
	// Archive
	mux.HandleFunc("/admin/logs", api.authenticate(api.handleLogs))
	mux.HandleFunc("/admin/logs/get", api.authenticate(api.handleGetLog))
	mux.HandleFunc("/admin/usage", api.authenticate(api.handleUsageStats))

	// Delivery
	mux.HandleFunc("/admin/transport", api.authenticate(api.handleTransport))
	mux.HandleFunc("/admin/flush", api.authenticate(api.handleFlush))

	// System
	mux.HandleFunc("/admin/health", api.handleHealth)
}

// authenticate middleware checks admin key
func (api *AdminAPI) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if api.adminKey == "" {
			respondJSON(w, http.StatusForbidden, map[string]string{
				"error": "Admin API disabled",
			})
			return
		}
		if r.Header.Get("X-Admin-Key") != api.adminKey {
			respondJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid admin key",
			})
			return
		}
		next(w, r)
	}
}

// handleLogs returns archived entries, newest first
func (api *AdminAPI) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.archiveEnabled(w) {
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logs, err := api.store.ListEntries(ctx, filters)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to get logs: %v", err),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// handleGetLog returns one archived entry by request id
func (api *AdminAPI) handleGetLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.archiveEnabled(w) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id parameter required",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entry, err := api.store.GetEntry(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{
			"error": "Entry not found",
		})
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to get entry: %v", err),
		})
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

// handleUsageStats returns usage statistics
func (api *AdminAPI) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !api.archiveEnabled(w) {
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, _ := time.Parse(time.RFC3339, r.URL.Query().Get("to"))

	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7) // Last 7 days
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := api.store.GetUsageStats(ctx, customerID, from, to)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to get stats: %v", err),
		})
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (api *AdminAPI) handleTransport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, api.shipper.Stats())
}

// handleFlush delivers one batch immediately and reports the outcome
func (api *AdminAPI) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := api.shipper.Flush(ctx); err != nil {
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": err.Error(),
			"stats": api.shipper.Stats(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Flush complete",
		"stats":   api.shipper.Stats(),
	})
}

// handleHealth returns system health
func (api *AdminAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := api.shipper.Stats()
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"breaker":   stats.BreakerState,
		"buffered":  stats.Buffered,
	}

	if stats.BreakerState == "open" {
		health["status"] = "degraded"
	}

	if api.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := api.store.Ping(ctx); err != nil {
			health["storage"] = "unhealthy"
			health["status"] = "degraded"
		} else {
			health["storage"] = "healthy"
		}
	}

	respondJSON(w, http.StatusOK, health)
}

func (api *AdminAPI) archiveEnabled(w http.ResponseWriter) bool {
	if api.store == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "Archive not enabled",
		})
		return false
	}
	return true
}

func parseFilters(r *http.Request) (storage.Filters, error) {
	q := r.URL.Query()
	filters := storage.Filters{
		CustomerID: q.Get("customer_id"),
		ToolName:   q.Get("tool"),
		ErrorsOnly: q.Get("errors") == "true",
		Limit:      100,
	}

	var err error
	if s := q.Get("status"); s != "" {
		if filters.StatusCode, err = strconv.Atoi(s); err != nil {
			return filters, fmt.Errorf("invalid status %q", s)
		}
	}
	if s := q.Get("limit"); s != "" {
		if filters.Limit, err = strconv.Atoi(s); err != nil || filters.Limit <= 0 {
			return filters, fmt.Errorf("invalid limit %q", s)
		}
	}
	if s := q.Get("offset"); s != "" {
		if filters.Offset, err = strconv.Atoi(s); err != nil || filters.Offset < 0 {
			return filters, fmt.Errorf("invalid offset %q", s)
		}
	}
	if s := q.Get("from"); s != "" {
		if filters.From, err = time.Parse(time.RFC3339, s); err != nil {
			return filters, fmt.Errorf("invalid from %q", s)
		}
	}
	if s := q.Get("to"); s != "" {
		if filters.To, err = time.Parse(time.RFC3339, s); err != nil {
			return filters, fmt.Errorf("invalid to %q", s)
		}
	}
	return filters, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
