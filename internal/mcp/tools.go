package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/odata"
	"github.com/michal-majer/s4kit/internal/sap"
)

func (s *MCPServer) registerTools(srv *server.MCPServer) {
	srv.AddTool(
		mcp.NewTool("s4kit_list_services",
			mcp.WithDescription(
				"List all routable SAP OData services with their slugs, "+
					"exposed entity sets, and OData versions. Use the slug "+
					"with s4kit_query_entity or s4kit_get_record.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListServices,
	)

	srv.AddTool(
		mcp.NewTool("s4kit_query_entity",
			mcp.WithDescription(
				"Query an entity set of a configured SAP OData service. "+
					"Supports the standard OData options; results are "+
					"returned unwrapped regardless of the backend's OData version.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("service",
				mcp.Required(),
				mcp.Description("Slug of the service, from s4kit_list_services"),
			),
			mcp.WithString("entity",
				mcp.Required(),
				mcp.Description("Entity set to query, e.g. A_BusinessPartner"),
			),
			mcp.WithString("filter",
				mcp.Description("OData $filter expression"),
			),
			mcp.WithString("select",
				mcp.Description("Comma-separated field list for $select"),
			),
			mcp.WithString("orderby",
				mcp.Description("OData $orderby clause"),
			),
			mcp.WithString("expand",
				mcp.Description("Navigation properties for $expand"),
			),
			mcp.WithNumber("top",
				mcp.Description("Maximum number of records to return (default 25)"),
			),
			mcp.WithNumber("skip",
				mcp.Description("Number of records to skip for pagination"),
			),
		),
		s.handleQueryEntity,
	)

	srv.AddTool(
		mcp.NewTool("s4kit_get_record",
			mcp.WithDescription(
				"Read one record by key from an entity set. Numeric keys "+
					"and GUIDs are formatted automatically.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("service",
				mcp.Required(),
				mcp.Description("Slug of the service"),
			),
			mcp.WithString("entity",
				mcp.Required(),
				mcp.Description("Entity set name"),
			),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Entity key value"),
			),
		),
		s.handleGetRecord,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

func (s *MCPServer) handleListServices(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	type serviceInfo struct {
		Slug         string   `json:"slug"`
		System       string   `json:"system"`
		Instance     string   `json:"instance"`
		Environment  string   `json:"environment"`
		ODataVersion string   `json:"odata_version"`
		Entities     []string `json:"entities"`
		IsActive     bool     `json:"is_active"`
	}

	var items []serviceInfo
	systems, err := s.store.ListSystems(ctx)
	if err != nil {
		return toolError("Failed to list systems: %v", err)
	}
	for _, sys := range systems {
		instances, err := s.store.ListInstances(ctx, sys.ID)
		if err != nil {
			return toolError("Failed to list instances: %v", err)
		}
		for _, inst := range instances {
			bindings, err := s.store.ListInstanceServices(ctx, inst.ID)
			if err != nil {
				return toolError("Failed to list instance services: %v", err)
			}
			for _, is := range bindings {
				ss, err := s.store.GetSystemService(ctx, is.SystemServiceID)
				if err != nil {
					continue
				}
				items = append(items, serviceInfo{
					Slug:         is.Slug,
					System:       sys.Name,
					Instance:     inst.Name,
					Environment:  inst.Environment,
					ODataVersion: ss.ODataVersion,
					Entities:     is.EffectiveEntities(ss),
					IsActive:     is.IsActive && inst.IsActive,
				})
			}
		}
	}

	return successJSON(map[string]interface{}{"services": items})
}

func (s *MCPServer) handleQueryEntity(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	slug, err := request.RequireString("service")
	if err != nil {
		return toolError("missing required parameter %q", "service")
	}
	entity, err := request.RequireString("entity")
	if err != nil {
		return toolError("missing required parameter %q", "entity")
	}

	top := request.GetInt("top", 25)
	opts := odata.QueryOptions{
		Filter:  request.GetString("filter", ""),
		OrderBy: request.GetString("orderby", ""),
		Expand:  request.GetString("expand", ""),
		Top:     &top,
	}
	if sel := request.GetString("select", ""); sel != "" {
		opts.Select = sel
	}
	if skip := request.GetInt("skip", 0); skip > 0 {
		opts.Skip = &skip
	}

	return s.proxyRead(ctx, slug, entity, opts)
}

func (s *MCPServer) handleGetRecord(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	slug, err := request.RequireString("service")
	if err != nil {
		return toolError("missing required parameter %q", "service")
	}
	entity, err := request.RequireString("entity")
	if err != nil {
		return toolError("missing required parameter %q", "entity")
	}
	key, err := request.RequireString("key")
	if err != nil {
		return toolError("missing required parameter %q", "key")
	}

	return s.proxyRead(ctx, slug, odata.BuildPath(entity, key), odata.QueryOptions{})
}

// proxyRead resolves a slug's configuration and forwards a GET through the
// same resolver/forwarder the HTTP proxy uses.
func (s *MCPServer) proxyRead(ctx context.Context, slug, entityPath string, opts odata.QueryOptions) (*mcp.CallToolResult, error) {
	is, err := s.store.GetInstanceServiceBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return toolError("No service is configured under slug %q. Use s4kit_list_services.", slug)
		}
		return toolError("Service lookup failed: %v", err)
	}
	if !is.IsActive {
		return toolError("Service %q is inactive.", slug)
	}
	inst, err := s.store.GetInstance(ctx, is.InstanceID)
	if err != nil {
		return toolError("Instance lookup failed: %v", err)
	}
	ss, err := s.store.GetSystemService(ctx, is.SystemServiceID)
	if err != nil {
		return toolError("System service lookup failed: %v", err)
	}

	auth, err := s.resolver.Resolve(inst, ss, is)
	if err != nil {
		return toolError("Auth resolution failed: %v", err)
	}

	result, err := s.forward.Do(ctx, &sap.Request{
		Method:      http.MethodGet,
		BaseURL:     inst.BaseURL,
		ServicePath: is.EffectiveServicePath(ss),
		EntityPath:  entityPath,
		Query:       odata.BuildQuery(opts),
		Auth:        auth,
	})
	if err != nil {
		return toolError("Request failed: %v", err)
	}
	if result.StatusCode >= 400 {
		info := odata.ParseError(result.Body)
		return toolError("Backend returned %d: %s (%s)", result.StatusCode, info.Message, info.Code)
	}

	parsed := odata.ParseResponse(result.Body)
	return successJSON(map[string]interface{}{
		"data":         parsed.Data,
		"count":        parsed.Count,
		"next_link":    parsed.NextLink,
		"record_count": parsed.RecordCount(),
	})
}

// =========================================================================
// Helpers
// =========================================================================

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool { return &b }

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

