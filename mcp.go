package postlink

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/postlink/kit"
)

// RegisterMCP registers the postlink tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerTransformTool(srv)
	s.registerAnnotateTool(srv)
	s.registerStatsTool(srv)
}

func (s *Service) registerTransformTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postlink_transform_url",
		Description: "Rewrite a post or page URL of a supported platform (twitter, instagram) to its alternate frontend host.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Absolute post or page URL"},
			"target": map[string]any{"type": "string", "description": "Target hostname; defaults to the configured one"},
		}, []string{"url"}),
	}
	endpoint := s.endpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		return s.TransformURL(ctx, req.(*TransformRequest))
	})
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[TransformRequest]())
}

func (s *Service) registerAnnotateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postlink_annotate_html",
		Description: "Inject copy-link controls into every post of a saved timeline page and return the annotated HTML with per-post outcomes.",
		InputSchema: kit.InputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "Timeline page markup"},
			"base_url": map[string]any{"type": "string", "description": "URL the page was saved from"},
			"platform": map[string]any{"type": "string", "enum": []string{"twitter", "instagram"}},
			"target":   map[string]any{"type": "string", "description": "Target hostname"},
		}, []string{"html", "base_url"}),
	}
	endpoint := s.endpoint(tool.Name, func(ctx context.Context, req any) (any, error) {
		return s.Annotate(ctx, req.(*AnnotateRequest))
	})
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeArgs[AnnotateRequest]())
}

func (s *Service) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "postlink_stats",
		Description: "Report live augmentation sessions: platform, target, injected/skipped/failed counts and reasons.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}
	endpoint := s.endpoint(tool.Name, func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"sessions": s.Stats(ctx)}, nil
	})
	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
