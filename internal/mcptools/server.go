// Package mcptools exposes formcrew's diff, feedback, status and memory
// search operations as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewServer creates an MCP server with every formcrew tool registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "formcrew",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_changes",
		Description: "Compute the lines inserted and deleted between an original and a modified text using a zero-context line diff.",
	}, svc.ExtractChanges)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "compare_report_changes",
		Description: "Compare a work item's generated draft reports with the reviewer's final output, per report key. Accepts a todoId or raw draft/output JSON.",
	}, svc.CompareReportChanges)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_feedback",
		Description: "Derive per-agent feedback from the reviewer's edits of a finished work item. The result is returned, not saved.",
	}, svc.GenerateFeedback)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the lifecycle stage and produced forms of a work item, or list the most recent work items.",
	}, svc.GetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Search an agent's long-term memory, including feedback remembered from past reviews.",
	}, svc.KnowledgeSearch)

	return server
}

// RunHTTP serves the MCP tools over streamable HTTP until ctx is cancelled.
func RunHTTP(ctx context.Context, svc *Service, addr string) error {
	server := NewServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background()) //nolint:errcheck
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunStdio serves the MCP tools on stdio, blocking until stdin is closed or
// ctx is cancelled.
func RunStdio(ctx context.Context, svc *Service) error {
	return NewServer(svc).Run(ctx, &mcp.StdioTransport{})
}
