package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/walletrisk/internal/report"
)

// Default and maximum list_riskiest_wallets limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = report.MaxLimit
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleGetWalletRisk returns one wallet's latest score.
func (h *Handlers) HandleGetWalletRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("address", ""))
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	score, err := h.client.WalletRisk(ctx, address)
	if isNotFound(err) {
		return mcp.NewToolResultText(fmt.Sprintf("Wallet %s has not been scored yet.", address)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get wallet risk: %v", err)), nil
	}

	return mcp.NewToolResultText(formatWalletScore(score)), nil
}

// HandleCompareWallets returns the latest scores of several wallets.
func (h *Handlers) HandleCompareWallets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addresses := req.GetStringSlice("addresses", nil)
	if len(addresses) == 0 {
		return mcp.NewToolResultError("addresses is required"), nil
	}
	if len(addresses) > report.MaxBatchAddresses {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d addresses can be compared", report.MaxBatchAddresses)), nil
	}

	resp, err := h.client.BatchRisk(ctx, addresses)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to compare wallets: %v", err)), nil
	}

	return mcp.NewToolResultText(formatComparison(resp)), nil
}

// HandleListRiskiestWallets lists the top of a run.
func (h *Handlers) HandleListRiskiestWallets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", DefaultListLimit)
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	runID := strings.TrimSpace(req.GetString("run_id", ""))
	if runID == "" {
		run, err := h.client.LatestRun(ctx)
		if isNotFound(err) {
			return mcp.NewToolResultText("No scoring run has completed yet."), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get latest run: %v", err)), nil
		}
		runID = run.ID
	}

	wallets, err := h.client.RunWallets(ctx, runID, limit)
	if isNotFound(err) {
		return mcp.NewToolResultError(fmt.Sprintf("Scoring run %s not found", runID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list wallets: %v", err)), nil
	}

	return mcp.NewToolResultText(formatWalletList(runID, wallets)), nil
}

// HandleGetLatestRun summarizes the latest run.
func (h *Handlers) HandleGetLatestRun(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	run, err := h.client.LatestRun(ctx)
	if isNotFound(err) {
		return mcp.NewToolResultText("No scoring run has completed yet."), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get latest run: %v", err)), nil
	}

	return mcp.NewToolResultText(formatRun(run)), nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// --- Formatting helpers ---

var bandOrder = []string{"critical", "high", "medium", "low"}

func formatWalletScore(s *report.WalletScore) string {
	var sb strings.Builder
	sb.WriteString("Wallet Risk:\n")
	fmt.Fprintf(&sb, "  Address: %s\n", s.Address)
	fmt.Fprintf(&sb, "  Final Score: %.0f / 1000 (%s)\n", s.FinalRiskScore, s.RiskBand)
	fmt.Fprintf(&sb, "  Base Score: %.1f\n", s.BaseRiskScore)

	if len(s.Contributions) > 0 {
		names := make([]string, 0, len(s.Contributions))
		for name := range s.Contributions {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return s.Contributions[names[i]] > s.Contributions[names[j]]
		})
		sb.WriteString("  Components:\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "    %s: %.3f\n", name, s.Contributions[name])
		}
	}
	if len(s.Boosts) > 0 {
		fmt.Fprintf(&sb, "  Boosts Applied: %s\n", strings.Join(s.Boosts, ", "))
	}

	anomaly := "no"
	if s.IsAnomaly {
		anomaly = "yes"
	}
	fmt.Fprintf(&sb, "  Anomalous: %s (isolation score %.3f)\n", anomaly, s.AnomalyScore)
	fmt.Fprintf(&sb, "  Cluster: %d (adjustment x%.2f)\n", s.Cluster, s.ClusterRiskAdjustment)
	fmt.Fprintf(&sb, "  Run: %s\n", s.RunID)
	return sb.String()
}

func formatComparison(resp *report.BatchResponse) string {
	scores := append([]*report.WalletScore(nil), resp.Scores...)
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalRiskScore > scores[j].FinalRiskScore
	})

	var sb strings.Builder
	if len(scores) == 0 {
		sb.WriteString("None of the wallets have been scored.\n")
	} else {
		fmt.Fprintf(&sb, "Scored %d wallet(s), riskiest first:\n\n", len(scores))
		for i, s := range scores {
			fmt.Fprintf(&sb, "%d. %s  %.0f (%s)%s\n", i+1, s.Address, s.FinalRiskScore, s.RiskBand, anomalyTag(s.IsAnomaly))
		}
	}
	if len(resp.NotFound) > 0 {
		fmt.Fprintf(&sb, "\nNot scored: %s\n", strings.Join(resp.NotFound, ", "))
	}
	return sb.String()
}

func formatWalletList(runID string, wallets []report.WalletScore) string {
	if len(wallets) == 0 {
		return fmt.Sprintf("Run %s has no scored wallets.", runID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d wallet(s) in run %s:\n\n", len(wallets), runID)
	for i, w := range wallets {
		fmt.Fprintf(&sb, "%d. %s  %.0f (%s)%s\n", i+1, w.Address, w.FinalRiskScore, w.RiskBand, anomalyTag(w.IsAnomaly))
	}
	return sb.String()
}

func formatRun(run *report.Run) string {
	var sb strings.Builder
	sb.WriteString("Latest Scoring Run:\n")
	fmt.Fprintf(&sb, "  ID: %s\n", run.ID)
	fmt.Fprintf(&sb, "  Status: %s\n", run.Status)
	fmt.Fprintf(&sb, "  Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	if run.Status != report.StatusOK {
		return sb.String()
	}
	fmt.Fprintf(&sb, "  Wallets: %d (%d anomalous)\n", run.Wallets, run.Anomalies)
	fmt.Fprintf(&sb, "  Transactions: %d kept, %d dropped\n", run.RowsKept, run.RowsDropped)
	fmt.Fprintf(&sb, "  Mean Final Score: %.1f\n", run.MeanFinalScore)
	sb.WriteString("  Bands:")
	for _, b := range bandOrder {
		fmt.Fprintf(&sb, " %s=%d", b, run.BandCounts[b])
	}
	sb.WriteString("\n")
	return sb.String()
}

func anomalyTag(anomalous bool) string {
	if anomalous {
		return " [anomaly]"
	}
	return ""
}
