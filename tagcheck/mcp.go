package tagcheck

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/tagqa/kit"
)

// RegisterMCP registers the tagqa tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tagqa_examine",
		Description: "Examine the tracking specs of an Airtable table against the pages they name and write a pass/fail verdict per record.",
		InputSchema: inputSchema(map[string]any{
			"base_id":      map[string]any{"type": "string", "description": "Airtable base id (default: configured base)"},
			"table_id":     map[string]any{"type": "string", "description": "Table id or name (default: configured table)"},
			"view":         map[string]any{"type": "string", "description": "View restricting the records"},
			"formula":      map[string]any{"type": "string", "description": "filterByFormula expression"},
			"result_field": map[string]any{"type": "string", "description": "Checkbox field receiving the verdict"},
			"dry_run":      map[string]any{"type": "boolean", "description": "Examine without writing verdicts"},
		}, nil),
	}, s.examineEndpoint(), kit.DecodeArgs[ExaminationRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tagqa_monitor",
		Description: "Open a Tag Manager preview link, reload the site loops times and report every iteration whose measurement ids differ from the expected one.",
		InputSchema: inputSchema(map[string]any{
			"preview_url": map[string]any{"type": "string", "description": "Tag Assistant preview link"},
			"expected":    map[string]any{"type": "string", "description": "Expected measurement id, e.g. G-XXXX"},
			"loops":       map[string]any{"type": "integer", "description": "Number of iterations"},
			"policy":      map[string]any{"type": "string", "enum": []string{"reopen", "keep"}},
			"interval_ms": map[string]any{"type": "integer", "description": "Pause between iterations"},
		}, []string{"preview_url", "expected"}),
	}, s.monitorEndpoint(), kit.DecodeArgs[MonitorRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tagqa_containers",
		Description: "List the Tag Manager containers and gtag ids a page loads.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}, s.containersEndpoint(), kit.DecodeArgs[urlReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "tagqa_monitor_run",
		Description: "Fetch a stored monitor report by run id.",
		InputSchema: inputSchema(map[string]any{
			"run_id": map[string]any{"type": "string"},
		}, []string{"run_id"}),
	}, s.monitorRunEndpoint(), kit.DecodeArgs[runIDReq])
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
