package registry

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/aipo/audit"
	"github.com/hazyhaar/aipo/kit"
)

// RegisterMCP registers the registry query tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerGetPatent(srv)
	s.registerSearch(srv)
	s.registerStats(srv)
	s.registerGaps(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var localeProperty = map[string]any{
	"type":        "string",
	"enum":        []string{"en", "ru", "hy"},
	"description": "Registry locale",
}

func (s *Service) endpoint(name string, fn kit.Endpoint) kit.Endpoint {
	mws := []kit.Middleware{kit.Logging(s.logger, name)}
	if s.audit != nil {
		mws = append(mws, audit.Middleware(s.audit, name))
	}
	return kit.Chain(mws...)(fn)
}

func (s *Service) registerGetPatent(srv *mcp.Server) {
	type req struct {
		Locale        string `json:"locale"`
		CertificateID int    `json:"certificate_id"`
	}

	tool := &mcp.Tool{
		Name:        "registry_get_patent",
		Description: "Get an industrial-design record by certificate id, with extracted details when available",
		InputSchema: inputSchema(map[string]any{
			"locale":         localeProperty,
			"certificate_id": map[string]any{"type": "integer", "description": "Certificate id"},
		}, []string{"locale", "certificate_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.GetPatent(ctx, p.Locale, p.CertificateID)
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (s *Service) registerSearch(srv *mcp.Server) {
	type req struct {
		Locale string `json:"locale"`
		Query  string `json:"query"`
		Limit  int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "registry_search",
		Description: "Full-text search on industrial-design titles",
		InputSchema: inputSchema(map[string]any{
			"locale": localeProperty,
			"query":  map[string]any{"type": "string", "description": "Words to match in titles (prefix match)"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, []string{"locale", "query"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		results, err := s.SearchPatents(ctx, p.Locale, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		if results == nil {
			results = []*SearchResult{}
		}
		return results, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (s *Service) registerStats(srv *mcp.Server) {
	type req struct {
		Locale string `json:"locale"`
	}

	tool := &mcp.Tool{
		Name:        "registry_stats",
		Description: "Counters of the indexed registry: records, gaps, details, last id",
		InputSchema: inputSchema(map[string]any{
			"locale": localeProperty,
		}, []string{"locale"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.Stats(ctx, r.(*req).Locale)
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeJSON[req]())
}

func (s *Service) registerGaps(srv *mcp.Server) {
	type req struct {
		Locale string `json:"locale"`
	}

	tool := &mcp.Tool{
		Name:        "registry_gaps",
		Description: "Certificate ids the registry never answers for",
		InputSchema: inputSchema(map[string]any{
			"locale": localeProperty,
		}, []string{"locale"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		gaps, err := s.ListGaps(ctx, r.(*req).Locale)
		if err != nil {
			return nil, err
		}
		return map[string][]int{"gaps": gaps}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeJSON[req]())
}
