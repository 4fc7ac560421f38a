package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *AtelierClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *AtelierClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetContract fetches one contract.
func (h *Handlers) HandleGetContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contractID := req.GetString("contract_id", "")
	if contractID == "" {
		return mcp.NewToolResultError("contract_id is required"), nil
	}

	raw, err := h.client.GetContract(ctx, contractID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get contract: %v", err)), nil
	}

	text, err := formatContract(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse contract: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListContracts lists the acting user's contracts.
func (h *Handlers) HandleListContracts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListContracts(ctx, status, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list contracts: %v", err)), nil
	}

	text, err := formatContractList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse contracts: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleContractActions reports the caller's available actions.
func (h *Handlers) HandleContractActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contractID := req.GetString("contract_id", "")
	if contractID == "" {
		return mcp.NewToolResultError("contract_id is required"), nil
	}

	raw, err := h.client.GetActions(ctx, contractID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get actions: %v", err)), nil
	}

	text, err := formatActions(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse actions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetSignatureData returns the typed data to sign.
func (h *Handlers) HandleGetSignatureData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contractID := req.GetString("contract_id", "")
	if contractID == "" {
		return mcp.NewToolResultError("contract_id is required"), nil
	}

	raw, err := h.client.GetSignatureData(ctx, contractID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get signature data: %v", err)), nil
	}

	return mcp.NewToolResultText("Sign exactly this typed data:\n\n" + formatJSON(raw)), nil
}

// HandleRequestCancellation opens a cancellation request.
func (h *Handlers) HandleRequestCancellation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contractID := req.GetString("contract_id", "")
	if contractID == "" {
		return mcp.NewToolResultError("contract_id is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	raw, err := h.client.RequestCancellation(ctx, contractID, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Cancellation request failed: %v", err)), nil
	}

	text, err := formatContract(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse contract: %v", err)), nil
	}

	return mcp.NewToolResultText(
		"Cancellation requested. The contract is frozen until an operator resolves it.\n\n"+text), nil
}

// HandleConfirmSettlement settles a completed contract.
func (h *Handlers) HandleConfirmSettlement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contractID := req.GetString("contract_id", "")
	if contractID == "" {
		return mcp.NewToolResultError("contract_id is required"), nil
	}

	raw, err := h.client.ConfirmSettlement(ctx, contractID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Settlement failed: %v", err)), nil
	}

	text, err := formatContract(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse contract: %v", err)), nil
	}

	return mcp.NewToolResultText("Contract settled.\n\n" + text), nil
}

// --- Formatting helpers ---

type contractInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
	Leader      struct {
		UserID   string `json:"userId"`
		Nickname string `json:"nickname"`
	} `json:"leader"`
	Artist struct {
		UserID   string `json:"userId"`
		Nickname string `json:"nickname"`
	} `json:"artist"`
	OrderID string `json:"orderId"`
	NFT     *struct {
		OnchainStatus string `json:"onchainStatus"`
		ExplorerURL   string `json:"explorerUrl"`
	} `json:"nftInfo"`
	Cancellation *struct {
		RequestedBy string `json:"requestedBy"`
		Reason      string `json:"reason"`
		Resolution  string `json:"resolution"`
	} `json:"cancellationRequest"`
}

func formatContract(raw json.RawMessage) (string, error) {
	var resp struct {
		Contract contractInfo `json:"contract"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return describeContract(&resp.Contract), nil
}

func describeContract(c *contractInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", c.Title, c.ID)
	fmt.Fprintf(&sb, "Status: %s\n", c.Status)
	fmt.Fprintf(&sb, "Leader: %s (%s)\n", c.Leader.Nickname, c.Leader.UserID)
	fmt.Fprintf(&sb, "Artist: %s (%s)\n", c.Artist.Nickname, c.Artist.UserID)
	fmt.Fprintf(&sb, "Amount: %d\n", c.TotalAmount)
	fmt.Fprintf(&sb, "Period: %s to %s\n", shortDate(c.StartAt), shortDate(c.EndAt))
	if c.OrderID != "" {
		fmt.Fprintf(&sb, "Payment order: %s\n", c.OrderID)
	}
	if c.NFT != nil {
		fmt.Fprintf(&sb, "NFT mint: %s", c.NFT.OnchainStatus)
		if c.NFT.ExplorerURL != "" {
			fmt.Fprintf(&sb, " (%s)", c.NFT.ExplorerURL)
		}
		sb.WriteString("\n")
	}
	if c.Cancellation != nil {
		fmt.Fprintf(&sb, "Cancellation: %s, requested by %s (%s)\n",
			c.Cancellation.Resolution, c.Cancellation.RequestedBy, c.Cancellation.Reason)
	}
	return sb.String()
}

func formatContractList(raw json.RawMessage) (string, error) {
	var resp struct {
		Contracts []contractInfo `json:"contracts"`
		Count     int            `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Contracts) == 0 {
		return "No contracts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d contract(s):\n\n", len(resp.Contracts))
	for i := range resp.Contracts {
		c := &resp.Contracts[i]
		fmt.Fprintf(&sb, "- %s (%s): %s, amount %d, leader %s, artist %s\n",
			c.Title, c.ID, c.Status, c.TotalAmount, c.Leader.Nickname, c.Artist.Nickname)
	}
	return sb.String(), nil
}

func formatActions(raw json.RawMessage) (string, error) {
	var resp struct {
		Status  string          `json:"status"`
		Role    string          `json:"role"`
		Actions map[string]bool `json:"actions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var enabled []string
	for name, ok := range resp.Actions {
		if ok {
			enabled = append(enabled, name)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Your role: %s\n", resp.Role)
	fmt.Fprintf(&sb, "Contract status: %s\n", resp.Status)
	if len(enabled) == 0 {
		sb.WriteString("No actions available right now.")
	} else {
		fmt.Fprintf(&sb, "Available actions: %s", strings.Join(enabled, ", "))
	}
	return sb.String(), nil
}

func shortDate(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

func formatJSON(raw json.RawMessage) string {
	var buf strings.Builder
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return string(raw)
	}
	return strings.TrimSpace(buf.String())
}
