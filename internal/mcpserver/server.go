package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/walletrisk/internal/traces"
)

// NewMCPServer creates an MCP server exposing the wallet risk tools.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("walletrisk", traces.Version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolGetWalletRisk, h.HandleGetWalletRisk)
	s.AddTool(ToolCompareWallets, h.HandleCompareWallets)
	s.AddTool(ToolListRiskiestWallets, h.HandleListRiskiestWallets)
	s.AddTool(ToolGetLatestRun, h.HandleGetLatestRun)

	return s
}
