package files

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/marketbridge/mcp-marketdata/internal/server"
	"github.com/marketbridge/mcp-marketdata/internal/tools"
)

// RegisterFileTools registers the project and file management tools with the
// MCP server
func RegisterFileTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// marketdata_create_project tool
	createTool := mcp.NewTool("marketdata_create_project",
		mcp.WithDescription("Create a project folder under the output root. "+
			"Project folders group the files written by query tools; creating one that already exists is a no-op."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Project name (sanitized into a folder name, e.g. \"earnings-q3\")"),
		),
	)

	s.AddTool(createTool, tools.WrapWithAuditLogging("marketdata_create_project", handleCreateProject, sc))

	// marketdata_list_projects tool
	listProjectsTool := mcp.NewTool("marketdata_list_projects",
		mcp.WithDescription("List the project folders under the output root with file counts and sizes."),
	)

	s.AddTool(listProjectsTool, tools.WrapWithAuditLogging("marketdata_list_projects", handleListProjects, sc))

	// marketdata_list_project_files tool
	listFilesOpts := []mcp.ToolOption{
		mcp.WithDescription("List the output files in a project folder, optionally filtered by a glob pattern."),
		mcp.WithString("pattern",
			mcp.Description("Glob pattern to filter filenames (optional, e.g. \"*.csv\")"),
		),
	}
	listFilesOpts = append(listFilesOpts, tools.AddProjectParam(sc)...)
	listFilesTool := mcp.NewTool("marketdata_list_project_files", listFilesOpts...)

	s.AddTool(listFilesTool, tools.WrapWithAuditLogging("marketdata_list_project_files", handleListProjectFiles, sc))

	// marketdata_delete_project_file tool
	deleteOpts := []mcp.ToolOption{
		mcp.WithDescription("Delete a single output file from a project folder."),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("Name of the file to delete (as reported by marketdata_list_project_files)"),
		),
	}
	deleteOpts = append(deleteOpts, tools.AddProjectParam(sc)...)
	deleteTool := mcp.NewTool("marketdata_delete_project_file", deleteOpts...)

	s.AddTool(deleteTool, tools.WrapWithAuditLogging("marketdata_delete_project_file", handleDeleteProjectFile, sc))

	return nil
}
