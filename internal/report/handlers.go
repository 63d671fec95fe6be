package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/validation"
)

// MaxBatchAddresses bounds POST /wallets/batch.
const MaxBatchAddresses = 100

// Handler provides HTTP endpoints for stored scoring runs.
type Handler struct {
	store Store
}

// NewHandler creates a new report handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// BatchRequest is the body of POST /wallets/batch.
type BatchRequest struct {
	Addresses []string `json:"addresses"`
}

// BatchResponse returns scores for the known addresses and lists the rest.
type BatchResponse struct {
	Scores   []*WalletScore `json:"scores"`
	NotFound []string       `json:"notFound"`
}

// RegisterRoutes sets up report endpoints
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/runs/latest", h.GetLatestRun)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/wallets", h.ListRunWallets)
	r.GET("/wallets/:address/risk", validation.WalletParamMiddleware(), h.GetWalletRisk)
	r.POST("/wallets/batch", h.GetBatchRisk)
}

// GetLatestRun returns the most recent scoring run.
// GET /v1/runs/latest
func (h *Handler) GetLatestRun(c *gin.Context) {
	run, err := h.store.LatestRun(c.Request.Context())
	if err != nil {
		h.fail(c, err, "no_runs", "No scoring run has completed yet")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetRun returns one scoring run.
// GET /v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "run_not_found", "Scoring run not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

// ListRunWallets returns a run's wallets, riskiest first.
// GET /v1/runs/:id/wallets?limit=
func (h *Handler) ListRunWallets(c *gin.Context) {
	runID := c.Param("id")
	limit := DefaultLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = ClampLimit(parsed)
	}

	wallets, err := h.store.ListWallets(c.Request.Context(), runID, limit)
	if err != nil {
		h.fail(c, err, "run_not_found", "Scoring run not found")
		return
	}
	if wallets == nil {
		wallets = []WalletScore{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runId":   runID,
		"wallets": wallets,
		"count":   len(wallets),
	})
}

// GetWalletRisk returns the latest score for one wallet.
// GET /v1/wallets/:address/risk
func (h *Handler) GetWalletRisk(c *gin.Context) {
	address := validation.SanitizeWalletID(c.Param("address"))

	score, err := h.store.LatestScore(c.Request.Context(), address)
	if err != nil {
		h.fail(c, err, "wallet_not_found", "Wallet has not been scored")
		return
	}
	c.JSON(http.StatusOK, gin.H{"score": score})
}

// GetBatchRisk returns the latest scores for up to MaxBatchAddresses wallets.
// POST /v1/wallets/batch
func (h *Handler) GetBatchRisk(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'addresses' array",
		})
		return
	}
	if len(req.Addresses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "At least one address is required",
		})
		return
	}
	if len(req.Addresses) > MaxBatchAddresses {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "too_many_addresses",
			"message": "Maximum 100 addresses per batch request",
		})
		return
	}

	resp := BatchResponse{Scores: []*WalletScore{}, NotFound: []string{}}
	for _, raw := range req.Addresses {
		if errs := validation.Validate(
			validation.Required("addresses", raw),
			validation.ValidWalletID("addresses", raw),
		); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": errs.Error(),
				"address": raw,
			})
			return
		}
		addr := validation.SanitizeWalletID(raw)
		score, err := h.store.LatestScore(c.Request.Context(), addr)
		if errors.Is(err, ErrNotFound) {
			resp.NotFound = append(resp.NotFound, addr)
			continue
		}
		if err != nil {
			h.fail(c, err, "", "")
			return
		}
		resp.Scores = append(resp.Scores, score)
	}

	c.JSON(http.StatusOK, resp)
}

// fail maps store errors to responses: ErrNotFound becomes a 404 with the
// given code, anything else a logged 500.
func (h *Handler) fail(c *gin.Context, err error, notFoundCode, notFoundMsg string) {
	if errors.Is(err, ErrNotFound) && notFoundCode != "" {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   notFoundCode,
			"message": notFoundMsg,
		})
		return
	}
	logging.L(c.Request.Context()).Error("report query failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "query_failed",
		"message": "Failed to query scoring results",
	})
}
