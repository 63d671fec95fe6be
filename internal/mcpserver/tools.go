package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Descriptions are what the LLM reads to decide which
// tool to use.

var ToolGetWalletRisk = mcp.NewTool("get_wallet_risk",
	mcp.WithDescription(
		"Get the latest risk score for one wallet that interacts with Compound. "+
			"Returns the final risk score (0-1000), its band (low/medium/high/critical), "+
			"the base score with its per-component contributions, and the ML signals "+
			"(anomaly flag and behaviour cluster)."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("Wallet address (e.g. '0x1234...')")),
)

var ToolCompareWallets = mcp.NewTool("compare_wallets",
	mcp.WithDescription(
		"Get the latest risk scores for several wallets at once, riskiest first. "+
			"Wallets that have never been scored are listed separately."),
	mcp.WithArray("addresses",
		mcp.Required(),
		mcp.Description("Wallet addresses to compare (at most 100)"),
		mcp.WithStringItems()),
)

var ToolListRiskiestWallets = mcp.NewTool("list_riskiest_wallets",
	mcp.WithDescription(
		"List the highest-risk wallets of a scoring run, ordered by final risk score. "+
			"Uses the latest run unless run_id is given."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of wallets to return (default 10, max 1000)")),
	mcp.WithString("run_id",
		mcp.Description("Scoring run ID; defaults to the latest run")),
)

var ToolGetLatestRun = mcp.NewTool("get_latest_run",
	mcp.WithDescription(
		"Summarize the most recent scoring run: how many wallets were scored, "+
			"how many were flagged anomalous, the risk band distribution, and when it ran."),
)
