package files

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/marketbridge/mcp-marketdata/internal/instrumentation"
	"github.com/marketbridge/mcp-marketdata/internal/server"
	"github.com/marketbridge/mcp-marketdata/internal/tools"
)

// handleCreateProject creates a project folder under the output root.
func handleCreateProject(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	name, _ := args["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	if refusal := tools.CheckMutatingOperation(sc, "create"); refusal != nil {
		return refusal, nil
	}
	if refusal := tools.CheckProjectAccess(sc, name); refusal != nil {
		return refusal, nil
	}

	ctx, span := instrumentation.StartStoreSpan(ctx, instrumentation.OperationCreate, name)
	defer span.End()

	start := time.Now()
	path, err := sc.ProjectStore().CreateProject(name)
	recordProjectOp(ctx, sc, instrumentation.OperationCreate, name, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}
	instrumentation.SetSpanSuccess(span)

	return mcp.NewToolResultText(fmt.Sprintf("Project %q is ready under the output root as %q.", name, filepath.Base(path))), nil
}

// handleListProjects lists the project folders under the output root.
func handleListProjects(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ctx, span := instrumentation.StartStoreSpan(ctx, instrumentation.OperationList, "")
	defer span.End()

	start := time.Now()
	projects, err := sc.ProjectStore().ListProjects(ctx)
	recordProjectOp(ctx, sc, instrumentation.OperationList, "", err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}
	instrumentation.SetSpanSuccess(span)

	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects found under the output root."), nil
	}

	data, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render project list: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

// handleListProjectFiles lists the output files in one project folder.
func handleListProjectFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	project := projectArg(sc, args)
	if refusal := tools.CheckProjectAccess(sc, project); refusal != nil {
		return refusal, nil
	}

	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		pattern = "*"
	}
	// Surface malformed globs as an argument problem rather than a store
	// failure.
	if _, err := filepath.Match(pattern, "probe"); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("pattern %q is not a valid glob expression", pattern)), nil
	}

	ctx, span := instrumentation.StartStoreSpan(ctx, instrumentation.OperationListFiles, project)
	defer span.End()

	start := time.Now()
	filesInfo, err := sc.ProjectStore().ListProjectFiles(project, pattern)
	recordProjectOp(ctx, sc, instrumentation.OperationListFiles, project, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}
	instrumentation.SetSpanSuccess(span)

	if len(filesInfo) == 0 {
		where := "under the output root"
		if project != "" {
			where = fmt.Sprintf("in project %q", project)
		}
		return mcp.NewToolResultText(fmt.Sprintf("No output files found %s.", where)), nil
	}

	data, err := json.MarshalIndent(filesInfo, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render file list: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

// handleDeleteProjectFile deletes one output file from a project folder.
func handleDeleteProjectFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filename, _ := args["filename"].(string)
	if filename == "" {
		return mcp.NewToolResultError("filename is required"), nil
	}

	project := projectArg(sc, args)

	if refusal := tools.CheckMutatingOperation(sc, "delete"); refusal != nil {
		return refusal, nil
	}
	if refusal := tools.CheckProjectAccess(sc, project); refusal != nil {
		return refusal, nil
	}

	ctx, span := instrumentation.StartStoreSpan(ctx, instrumentation.OperationDeleteFile, project)
	defer span.End()

	start := time.Now()
	deleted, err := sc.ProjectStore().DeleteProjectFile(project, filename)
	recordProjectOp(ctx, sc, instrumentation.OperationDeleteFile, project, err, time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return mcp.NewToolResultError(tools.FormatOutputError(err)), nil
	}
	instrumentation.SetSpanSuccess(span)

	if !deleted {
		return mcp.NewToolResultText(fmt.Sprintf("File %q was not found; nothing was deleted.", filename)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Deleted %q.", filename)), nil
}

// projectArg resolves the effective project for a call: the explicit
// argument, then the server's default project, then the output root itself.
func projectArg(sc *server.ServerContext, args map[string]interface{}) string {
	project, _ := args["project"].(string)
	if project == "" {
		if cfg := sc.Config(); cfg != nil {
			project = cfg.DefaultProject
		}
	}
	return project
}

// recordProjectOp records one store operation metric.
func recordProjectOp(ctx context.Context, sc *server.ServerContext, operation, project string, err error, elapsed time.Duration) {
	provider := sc.InstrumentationProvider()
	if provider == nil {
		return
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	provider.Metrics().RecordProjectOperation(ctx, operation, project, status, elapsed)
}
