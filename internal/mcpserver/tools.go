package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Atelier MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetContract = mcp.NewTool("get_contract",
	mcp.WithDescription(
		"Fetch a contract by ID from Atelier. "+
			"Returns the full contract snapshot: parties, terms, status, signatures, "+
			"payment order, NFT mint state, and any pending cancellation."),
	mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("The contract ID (e.g. 'con_a1b2c3')")),
)

var ToolListContracts = mcp.NewTool("list_contracts",
	mcp.WithDescription(
		"List your contracts on Atelier, newest first. "+
			"Includes contracts where you are the leader (hirer) or the artist (contractor). "+
			"Optionally filter by status."),
	mcp.WithString("status",
		mcp.Description("Filter by status (e.g. 'PENDING', 'PAYMENT_COMPLETED', 'SETTLED')"),
		mcp.Enum("PENDING", "DECLINED", "WITHDRAWN", "ARTIST_SIGNED", "PAYMENT_PENDING",
			"PAYMENT_COMPLETED", "CANCELLATION_REQUESTED", "CANCELED", "SETTLED")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of contracts to return (default 20)")),
)

var ToolContractActions = mcp.NewTool("contract_actions",
	mcp.WithDescription(
		"Ask which actions you can currently take on a contract. "+
			"The answer depends on your role (leader or artist) and the contract's status: "+
			"for example an artist can decline or sign a pending offer, while the leader can only withdraw it."),
	mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("The contract ID")),
)

var ToolGetSignatureData = mcp.NewTool("get_signature_data",
	mcp.WithDescription(
		"Get the EIP-712 typed data and hash for signing a contract's terms with a wallet. "+
			"Sign exactly this payload; the server rejects signatures over anything else."),
	mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("The contract ID")),
)

var ToolRequestCancellation = mcp.NewTool("request_cancellation",
	mcp.WithDescription(
		"Request cancellation of a paid contract. "+
			"Either party can ask; the request goes to arbitration and the contract is frozen "+
			"until an operator approves or rejects it."),
	mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("The contract ID")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Why the contract should be canceled")),
)

var ToolConfirmSettlement = mcp.NewTool("confirm_settlement",
	mcp.WithDescription(
		"Confirm that the commissioned work was delivered, settling the contract. "+
			"Only the leader can settle, and only after payment completed. This is final."),
	mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("The contract ID")),
)
