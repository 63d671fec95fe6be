package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/internal/report"
)

const (
	addrLow  = "0x00000000000000000000000000000000000000a1"
	addrHigh = "0x00000000000000000000000000000000000000b2"
)

// --- Test helpers ---

// newAPI serves the real report routes over store.
func newAPI(t *testing.T, store report.Store) *Handlers {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	report.NewHandler(store).RegisterRoutes(r.Group("/v1"))
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return NewHandlers(NewClient(Config{APIURL: ts.URL}))
}

func seeded(t *testing.T) report.Store {
	t.Helper()
	store := report.NewMemoryStore()
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	wallets := []report.WalletScore{
		{
			RunID: "run-1", Address: addrLow, FinalRiskScore: 120, RiskBand: "low",
			BaseRiskScore: 120, ClusterRiskAdjustment: 1, Boosts: []string{},
			Contributions: map[string]float64{"volumeRisk": 0.05, "behavioralRisk": 0.07},
		},
		{
			RunID: "run-1", Address: addrHigh, FinalRiskScore: 910, RiskBand: "critical",
			BaseRiskScore: 560, IsAnomaly: true, AnomalyScore: 0.71, Cluster: 3,
			ClusterRiskAdjustment: 1.08, Boosts: []string{"highErrorRate"},
			Contributions: map[string]float64{"technicalRisk": 0.2, "behavioralRisk": 0.25},
		},
	}
	run := &report.Run{ID: "run-1", Status: report.StatusOK, RowsKept: 40, StartedAt: now, CompletedAt: now}
	report.Summarize(run, wallets)
	require.NoError(t, store.SaveRun(context.Background(), run, wallets))
	return store
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_APIErrorMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_address",
			"message": "address must be a wallet address",
		})
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).WalletRisk(context.Background(), "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_address", apiErr.Code)
	assert.Contains(t, err.Error(), "400")
	assert.False(t, apiErr.NotFound())
}

func TestClient_NonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	_, err := NewClient(Config{APIURL: ts.URL}).LatestRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ConnectionRefused(t *testing.T) {
	_, err := NewClient(Config{APIURL: "http://127.0.0.1:1"}).LatestRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

// ============================================================
// Tool handler tests
// ============================================================

func TestHandleGetWalletRisk(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{"address": addrHigh}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Final Score: 910 / 1000 (critical)")
	assert.Contains(t, text, "Anomalous: yes")
	assert.Contains(t, text, "Boosts Applied: highErrorRate")
	assert.Contains(t, text, "Cluster: 3 (adjustment x1.08)")
	assert.Less(t, strings.Index(text, "behavioralRisk"), strings.Index(text, "technicalRisk"), "components ordered by contribution")
}

func TestHandleGetWalletRisk_Missing(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{
		"address": "0x00000000000000000000000000000000000000ff",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "has not been scored")
}

func TestHandleCompareWallets(t *testing.T) {
	h := newAPI(t, seeded(t))
	unknown := "0x00000000000000000000000000000000000000ff"

	result, err := h.HandleCompareWallets(context.Background(), makeRequest(map[string]any{
		"addresses": []any{addrLow, unknown, addrHigh},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Scored 2 wallet(s)")
	assert.Contains(t, text, "1. "+addrHigh)
	assert.Contains(t, text, "[anomaly]")
	assert.Contains(t, text, "Not scored: "+unknown)
}

func TestHandleCompareWallets_Validation(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleCompareWallets(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	many := make([]any, report.MaxBatchAddresses+1)
	for i := range many {
		many[i] = fmt.Sprintf("0x%040x", i)
	}
	result, err = h.HandleCompareWallets(context.Background(), makeRequest(map[string]any{"addresses": many}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListRiskiestWallets(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleListRiskiestWallets(context.Background(), makeRequest(map[string]any{"limit": float64(1)}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Top 1 wallet(s) in run run-1")
	assert.Contains(t, text, addrHigh)
	assert.NotContains(t, text, addrLow)
}

func TestHandleListRiskiestWallets_UnknownRun(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleListRiskiestWallets(context.Background(), makeRequest(map[string]any{"run_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestHandleGetLatestRun(t *testing.T) {
	h := newAPI(t, seeded(t))

	result, err := h.HandleGetLatestRun(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "ID: run-1")
	assert.Contains(t, text, "Wallets: 2 (1 anomalous)")
	assert.Contains(t, text, "critical=1 high=0 medium=0 low=1")
}

func TestHandleGetLatestRun_NoRuns(t *testing.T) {
	h := newAPI(t, report.NewMemoryStore())

	result, err := h.HandleGetLatestRun(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No scoring run")

	result, err = h.HandleListRiskiestWallets(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No scoring run")
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
