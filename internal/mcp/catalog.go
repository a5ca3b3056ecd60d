package mcp

import "encoding/json"

// Tool is one tools/list entry: a name, a human description, and a
// JSON Schema describing its call arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

var catalog = []Tool{
	{
		Name:        "search_code",
		Description: "Search indexed file content for a substring, scoped to the caller's owner.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"term": {"type": "string"},
				"repository_id": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 100}
			},
			"required": ["term"]
		}`),
	},
	{
		Name:        "index_repository",
		Description: "Enqueue an indexing job for a repository at a ref/commit.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"repository_id": {"type": "string"},
				"ref": {"type": "string"},
				"commit_sha": {"type": "string"}
			},
			"required": ["repository_id", "ref", "commit_sha"]
		}`),
	},
	{
		Name:        "list_recent_files",
		Description: "List the most recently indexed files for the caller's owner.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"repository_id": {"type": "string"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 100}
			}
		}`),
	},
	{
		Name:        "search_dependencies",
		Description: "Walk the dependency graph from a file, in either direction, up to a bounded depth.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"repository_id": {"type": "string"},
				"file_path": {"type": "string"},
				"direction": {"type": "string", "enum": ["dependencies", "dependents"]},
				"depth": {"type": "integer", "minimum": 1}
			},
			"required": ["file_path", "direction"]
		}`),
	},
	{
		Name:        "analyze_change_impact",
		Description: "Compute the union of files impacted by changing any of the given files.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"repository_id": {"type": "string"},
				"file_paths": {"type": "array", "items": {"type": "string"}, "minItems": 1}
			},
			"required": ["file_paths"]
		}`),
	},
	{
		Name:        "validate_implementation_spec",
		Description: "Check that a set of required files and symbols are present in the index.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"repository_id": {"type": "string"},
				"requirements": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"path": {"type": "string"},
							"symbol": {"type": "string"}
						},
						"required": ["path"]
					}
				}
			},
			"required": ["requirements"]
		}`),
	},
	{
		Name:        "kota_sync_export",
		Description: "Export indexed tables to JSONL files for offline sync.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"export_dir": {"type": "string"}
			},
			"required": ["export_dir"]
		}`),
	},
	{
		Name:        "kota_sync_import",
		Description: "Import JSONL files previously written by kota_sync_export.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"export_dir": {"type": "string"}
			},
			"required": ["export_dir"]
		}`),
	},
}

func schema(raw string) json.RawMessage {
	return json.RawMessage(raw)
}

// ToolCatalog returns the fixed tools/list payload.
func ToolCatalog() []Tool {
	return catalog
}

func findTool(name string) (Tool, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
