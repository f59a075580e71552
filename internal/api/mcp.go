package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/querybot/internal/conversation"
	"github.com/kalambet/querybot/internal/intent"
	"github.com/kalambet/querybot/internal/normalize"
)

// MCPConversation is the part of a conversation.Controller the MCP layer uses.
type MCPConversation interface {
	Ask(ctx context.Context, text string) (conversation.Message, error)
	Log() *conversation.Log
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Conversation MCPConversation
}

// NewMCPServer creates an MCP server with all querybot tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"querybot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("querybot answers questions about the users, queries and reports database."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("classify_question",
			mcp.WithDescription("Decide whether a question would be sent to the database service or answered with local help."),
			mcp.WithString("question", mcp.Description("The utterance to classify"), mcp.Required()),
		),
		mcpClassify(),
	)

	s.AddTool(
		mcp.NewTool("normalize_response",
			mcp.WithDescription("Render a raw Query Service JSON result as display text."),
			mcp.WithString("json", mcp.Description("The JSON document returned by the service"), mcp.Required()),
		),
		mcpNormalize(),
	)

	s.AddTool(
		mcp.NewTool("ask_database",
			mcp.WithDescription("Ask a question through the conversation: local help for out-of-scope questions, the database service otherwise."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"conversation://log",
			"Conversation Log",
			mcp.WithResourceDescription("Every message of the current session, oldest first, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLog(deps),
	)

	return s
}

func mcpClassify() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		type classification struct {
			intent.Decision
			Bucket string `json:"bucket,omitempty"`
		}
		d := intent.Classify(question)
		out := classification{Decision: d}
		if !d.Remote {
			out.Bucket = string(intent.DetectBucket(question))
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal decision: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpNormalize() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := req.RequireString("json")
		if err != nil {
			return mcpError("json is required"), nil
		}

		v, err := normalize.Parse([]byte(doc))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid JSON: %v", err)), nil
		}
		return mcpText(normalize.Normalize(v)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		msg, err := deps.Conversation.Ask(ctx, question)
		switch {
		case errors.Is(err, conversation.ErrEmpty):
			return mcpError("question is required"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		if msg.Failed() {
			return mcpError(msg.Text), nil
		}
		return mcpText(msg.Text), nil
	}
}

func mcpResourceLog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Conversation.Log().Messages())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversation log: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
