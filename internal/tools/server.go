package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is stamped at build time.
var Version = "dev"

// NewServer builds the MCP server with every tool registered.
func NewServer(s *Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "sensebridge",
		Version: Version,
	}, nil)

	// repository tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_apps",
		Description: "List applications with stream, owner and reload metadata",
	}, s.getApps)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_app_details",
		Description: "Fetch one application's full repository record",
	}, s.getAppDetails)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_app_metadata",
		Description: "Fetch an application's data-model metadata document",
	}, s.getAppMetadata)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_users",
		Description: "List directory users",
	}, s.getUsers)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_streams",
		Description: "List publishing streams",
	}, s.getStreams)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_tasks",
		Description: "List reload tasks with schedule status",
	}, s.getTasks)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "start_task",
		Description: "Trigger a reload task",
	}, s.startTask)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_data_connections",
		Description: "List data connection definitions",
	}, s.getDataConnections)

	// engine tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_doc_list",
		Description: "List documents visible to the engine session",
	}, s.getDocList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_script",
		Description: "Fetch an application's load script",
	}, s.getScript)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_fields",
		Description: "List data-model fields with inferred types and cardinality",
	}, s.getFields)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_sheets",
		Description: "List an application's sheets",
	}, s.getSheets)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_data_model",
		Description: "Summarize an application's objects by category",
	}, s.getDataModel)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_app_properties",
		Description: "Fetch an application's raw property bag",
	}, s.getAppProperties)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_table_data",
		Description: "Scan rows from one table, or from all tables' fields",
	}, s.getTableData)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_field_values",
		Description: "List a field's distinct values, optionally with frequencies",
	}, s.getFieldValues)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_field_statistics",
		Description: "Profile one field: counts, range, distribution and completeness",
	}, s.getFieldStatistics)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_hypercube",
		Description: "Compute an aggregation over dimensions and measure expressions",
	}, s.createHypercube)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_data_export",
		Description: "Export field data as json, csv or simple matrix",
	}, s.createDataExport)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "evaluate_expression",
		Description: "Evaluate one expression server-side",
	}, s.evaluateExpression)

	return srv
}
