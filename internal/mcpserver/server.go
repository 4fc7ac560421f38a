package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Atelier tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("atelier", "1.0.0")
	client := NewAtelierClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetContract, h.HandleGetContract)
	s.AddTool(ToolListContracts, h.HandleListContracts)
	s.AddTool(ToolContractActions, h.HandleContractActions)
	s.AddTool(ToolGetSignatureData, h.HandleGetSignatureData)
	s.AddTool(ToolRequestCancellation, h.HandleRequestCancellation)
	s.AddTool(ToolConfirmSettlement, h.HandleConfirmSettlement)

	return s
}
