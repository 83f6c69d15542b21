package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/starz/internal/chat"
	"github.com/kalambet/starz/internal/favorites"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *chat.Service
}

// NewMCPServer creates an MCP server exposing favorites as tools and the
// conversation list as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"starz",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("starz: bookmarked messages of chat conversations, with notes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List known conversations, most recently updated first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of conversations (default 20)")),
		),
		mcpListConversations(deps),
	)

	s.AddTool(
		mcp.NewTool("list_favorites",
			mcp.WithDescription("List one page of a conversation's favorite messages, highest position first, with text previews."),
			mcp.WithString("conversation", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithNumber("page", mcp.Description("1-based page number (default 1)")),
			mcp.WithNumber("page_size", mcp.Description("Items per page (default from config)")),
		),
		mcpListFavorites(deps),
	)

	s.AddTool(
		mcp.NewTool("toggle_favorite",
			mcp.WithDescription("Favorite a message, or unfavorite it if it already is one."),
			mcp.WithString("conversation", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithString("message_ref", mcp.Description("Message position or message ID"), mcp.Required()),
		),
		mcpToggleFavorite(deps),
	)

	s.AddTool(
		mcp.NewTool("set_favorite_note",
			mcp.WithDescription("Replace the note attached to a favorite."),
			mcp.WithString("conversation", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Favorite ID"), mcp.Required()),
			mcp.WithString("note", mcp.Description("New note text; empty clears it"), mcp.Required()),
		),
		mcpSetFavoriteNote(deps),
	)

	s.AddTool(
		mcp.NewTool("preview_favorite",
			mcp.WithDescription("Show a favorited message with the messages just before and after it."),
			mcp.WithString("conversation", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Favorite ID"), mcp.Required()),
		),
		mcpPreviewFavorite(deps),
	)

	s.AddTool(
		mcp.NewTool("prune_favorites",
			mcp.WithDescription("Find favorites whose message no longer exists. With confirm=true they are removed."),
			mcp.WithString("conversation", mcp.Description("Conversation ID"), mcp.Required()),
			mcp.WithBoolean("confirm", mcp.Description("Remove the invalid favorites (default false: report only)")),
		),
		mcpPruneFavorites(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"starz://conversations",
			"Conversations",
			mcp.WithResourceDescription("Conversations known to starz as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConversations(deps),
	)

	return s
}

func mcpListConversations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		convs, err := deps.Service.ListConversations(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list conversations: %v", err)), nil
		}
		out := make([]conversationResponse, len(convs))
		for i, c := range convs {
			out[i] = toConversationResponse(c)
		}
		return mcpJSON(out)
	}
}

func mcpListFavorites(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("conversation")
		if err != nil {
			return mcpError("conversation is required"), nil
		}
		l, err := deps.Service.Favorites(cid, req.GetInt("page", 1), req.GetInt("page_size", 0))
		if err != nil {
			return mcpServiceError(err), nil
		}
		return mcpJSON(l)
	}
}

func mcpToggleFavorite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("conversation")
		if err != nil {
			return mcpError("conversation is required"), nil
		}
		ref, err := req.RequireString("message_ref")
		if err != nil || ref == "" {
			return mcpError("message_ref is required"), nil
		}
		res, err := deps.Service.Toggle(cid, ref)
		if err != nil {
			return mcpServiceError(err), nil
		}
		if res.Added {
			return mcpText(fmt.Sprintf("Added favorite %s for message %s", res.Record.ID, res.Record.MessageRef)), nil
		}
		return mcpText(fmt.Sprintf("Removed favorite %s for message %s", res.Record.ID, res.Record.MessageRef)), nil
	}
}

func mcpSetFavoriteNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("conversation")
		if err != nil {
			return mcpError("conversation is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		note := req.GetString("note", "")
		if _, err := deps.Service.UpdateNote(cid, id, note); err != nil {
			return mcpServiceError(err), nil
		}
		return mcpText(fmt.Sprintf("Updated note of favorite %s", id)), nil
	}
}

func mcpPreviewFavorite(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("conversation")
		if err != nil {
			return mcpError("conversation is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		msgs, err := deps.Service.Preview(cid, id)
		if err != nil {
			return mcpServiceError(err), nil
		}
		return mcpJSON(msgs)
	}
}

func mcpPruneFavorites(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cid, err := req.RequireString("conversation")
		if err != nil {
			return mcpError("conversation is required"), nil
		}
		res, err := deps.Service.Prune(cid, req.GetBool("confirm", false))
		if err != nil {
			return mcpServiceError(err), nil
		}
		switch {
		case len(res.Invalid) == 0:
			return mcpText("No invalid favorites."), nil
		case res.Applied:
			return mcpText(fmt.Sprintf("Removed %d invalid favorites, %d kept.", len(res.Invalid), res.Kept)), nil
		}
		return mcpJSON(res)
	}
}

func mcpResourceConversations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		convs, err := deps.Service.ListConversations(100)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}
		out := make([]conversationResponse, len(convs))
		for i, c := range convs {
			out[i] = toConversationResponse(c)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
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

func mcpServiceError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, chat.ErrConversationUnavailable):
		return mcpError("conversation not found")
	case errors.Is(err, chat.ErrFavoriteNotFound):
		return mcpError("favorite not found")
	case errors.Is(err, favorites.ErrUnresolved):
		return mcpError("message reference does not resolve")
	}
	return mcpError(err.Error())
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
