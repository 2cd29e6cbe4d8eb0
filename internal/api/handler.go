package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ganga0312/sentinelstream/internal/config"
	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/history"
	"github.com/ganga0312/sentinelstream/internal/scoring"
)

// dashboardCacheTTL bounds staleness of the dashboard summary.
const dashboardCacheTTL = 30 * time.Second

// dashboardLimit is how many recent records feed the summary.
const dashboardLimit = 50

// Handler holds dependencies for API handlers.
type Handler struct {
	orchestrator *scoring.Orchestrator
	configStore  *config.Store
	history      domain.HistoryStore
	cache        domain.Cache
	bus          domain.EventBus
	rulesPath    string
	version      string
}

// NewHandler creates a new API handler. Cache and bus may be nil.
func NewHandler(orchestrator *scoring.Orchestrator, configStore *config.Store, hist domain.HistoryStore, cache domain.Cache, bus domain.EventBus, rulesPath, version string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		configStore:  configStore,
		history:      hist,
		cache:        cache,
		bus:          bus,
		rulesPath:    rulesPath,
		version:      version,
	}
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	TransactionID  string                `json:"transaction_id"`
	Score          float64               `json:"score"`
	Classification domain.Classification `json:"classification"`
	RiskLevel      domain.RiskLevel      `json:"risk_level"`
	TriggeredRules []string              `json:"triggered_rules"`
	EvaluatedAt    time.Time             `json:"evaluated_at"`
	Metadata       struct {
		TraceID    string `json:"trace_id"`
		DurationMs int64  `json:"duration_ms"`
		Version    string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate requests synchronously.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	outcome, err := h.orchestrator.EvaluateTransaction(ctx, &req)
	if err != nil {
		h.writeEvaluateError(w, req.TransactionID, err)
		return
	}

	resp := EvaluateResponse{
		TransactionID:  outcome.TransactionID,
		Score:          outcome.Score,
		Classification: outcome.Classification,
		RiskLevel:      outcome.RiskLevel,
		TriggeredRules: outcome.TriggeredRules,
		EvaluatedAt:    outcome.EvaluatedAt,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.DurationMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// EvaluateAsync handles POST /evaluate/async: the request is validated,
// queued on the ingestion topic, and evaluated by the worker.
func (h *Handler) EvaluateAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		h.writeEvaluateError(w, req.TransactionID, err)
		return
	}

	payload, err := json.Marshal(&req)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode request",
		})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to publish transaction", "tx_id", req.TransactionID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"transaction_id": req.TransactionID,
		"status":         "queued",
	})
}

// EvaluateHelp handles GET /evaluate with a usage description.
func (h *Handler) EvaluateHelp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "POST a transaction to this endpoint to evaluate it",
		"method":  "POST",
		"headers": map[string]string{
			APIKeyHeader:   "required",
			"Content-Type": "application/json",
		},
		"body": map[string]string{
			"transaction_id": "string, required",
			"account_id":     "string, optional",
			"amount":         "number, required, non-negative",
			"location":       "string, required",
			"merchant":       "string, required",
			"timestamp":      "RFC 3339 string, optional",
		},
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.history.GetTransaction(ctx, txID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetOutcome retrieves an evaluation outcome by transaction ID,
// checking the cache before the history store.
func (h *Handler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.cache != nil {
		if outcome, err := h.cache.GetOutcome(ctx, txID); err == nil && outcome != nil {
			writeJSON(w, http.StatusOK, outcome)
			return
		}
	}

	outcome, err := h.history.GetOutcome(ctx, txID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "outcome not found",
			})
			return
		}
		slog.Error("failed to get outcome", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get outcome",
		})
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// DashboardResponse is the JSON summary served by GET /dashboard.
type DashboardResponse struct {
	Total             int                `json:"total"`
	ByClassification  map[string]int     `json:"by_classification"`
	ByRiskLevel       map[string]int     `json:"by_risk_level"`
	AverageAmount     float64            `json:"average_amount"`
	AverageScore      float64            `json:"average_score"`
	TopLocations      []NamedCount       `json:"top_locations"`
	TopMerchants      []NamedCount       `json:"top_merchants"`
	RecentEvaluations []domain.Record    `json:"recent_evaluations"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// NamedCount pairs a dimension value with its occurrence count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Dashboard serves a summary of recent evaluations. The summary is cached
// briefly so dashboard polling does not hammer the history store.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cache != nil {
		if data, err := h.cache.Get(ctx, "dashboard"); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	records, err := h.history.Recent(ctx, dashboardLimit)
	if err != nil {
		slog.Error("failed to load recent records", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load dashboard data",
		})
		return
	}

	resp := buildDashboard(records)

	if h.cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			_ = h.cache.Set(ctx, "dashboard", data, dashboardCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func buildDashboard(records []domain.Record) *DashboardResponse {
	resp := &DashboardResponse{
		Total:            len(records),
		ByClassification: make(map[string]int),
		ByRiskLevel:      make(map[string]int),
		GeneratedAt:      time.Now().UTC(),
	}

	locations := make(map[string]int)
	merchants := make(map[string]int)
	var amountSum, scoreSum float64

	for _, rec := range records {
		resp.ByClassification[string(rec.Outcome.Classification)]++
		resp.ByRiskLevel[string(rec.Outcome.RiskLevel)]++
		locations[rec.Transaction.Location]++
		merchants[rec.Transaction.Merchant]++
		amountSum += rec.Transaction.Amount
		scoreSum += rec.Outcome.Score
	}

	if len(records) > 0 {
		resp.AverageAmount = amountSum / float64(len(records))
		resp.AverageScore = scoreSum / float64(len(records))
	}

	resp.TopLocations = topCounts(locations, 5)
	resp.TopMerchants = topCounts(merchants, 5)

	// Show only the newest handful in the feed
	if len(records) > 20 {
		records = records[:20]
	}
	resp.RecentEvaluations = records

	return resp
}

func topCounts(counts map[string]int, limit int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ConfigView is the JSON shape of the active configuration snapshot.
type ConfigView struct {
	HighRiskLocations []string      `json:"high_risk_locations"`
	RiskyMerchants    []string      `json:"risky_merchants"`
	Rules             []domain.Rule `json:"rules"`
	VelocityWindowSec float64       `json:"velocity_window_seconds"`
	ReviewThreshold   float64       `json:"review_threshold"`
	RejectThreshold   float64       `json:"reject_threshold"`
	MaxScore          float64       `json:"max_score"`
	LoadedAt          time.Time     `json:"loaded_at"`
}

// GetConfig returns the active configuration snapshot.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	snap := h.configStore.Current()

	view := ConfigView{
		HighRiskLocations: sortedKeys(snap.HighRiskLocations),
		RiskyMerchants:    sortedKeys(snap.RiskyMerchants),
		Rules:             snap.Rules,
		VelocityWindowSec: snap.VelocityWindow.Seconds(),
		ReviewThreshold:   snap.ReviewThreshold,
		RejectThreshold:   snap.RejectThreshold,
		MaxScore:          snap.MaxScore,
		LoadedAt:          snap.LoadedAt,
	}

	writeJSON(w, http.StatusOK, view)
}

// ReloadConfig re-reads the rules file and atomically swaps the active
// snapshot. A rejected document leaves the current snapshot untouched.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.rulesPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "no rules file configured",
		})
		return
	}

	data, err := os.ReadFile(h.rulesPath)
	if err != nil {
		slog.Error("failed to read rules file", "path", h.rulesPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read rules file",
		})
		return
	}

	if err := h.configStore.Reload(data); err != nil {
		var cerr *domain.ConfigError
		if errors.As(err, &cerr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": cerr.Error(),
				"field": cerr.Field,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload configuration",
		})
		return
	}

	snap := h.configStore.Current()
	slog.Info("configuration reloaded", "path", h.rulesPath, "rules", len(snap.Rules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "configuration reloaded",
		"rules":     len(snap.Rules),
		"loaded_at": snap.LoadedAt,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.history != nil {
		if err := h.history.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic. Unlike
// Health, an unreachable history store fails readiness outright: without it
// no evaluation can be persisted.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.history != nil {
		if err := h.history.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// writeEvaluateError maps pipeline errors to HTTP statuses.
func (h *Handler) writeEvaluateError(w http.ResponseWriter, txID string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}

	if errors.Is(err, domain.ErrDependencyTimeout) {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{
			"error": "evaluation timed out",
		})
		return
	}

	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		slog.Error("evaluation persistence failed", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "evaluation could not be persisted, retry with the same transaction_id",
		})
		return
	}

	slog.Error("evaluation failed", "tx_id", txID, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "evaluation failed",
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
