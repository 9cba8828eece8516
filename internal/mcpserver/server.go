// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Hydrolabel tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Spiffical/hydrolabel/internal/review"
	"github.com/Spiffical/hydrolabel/internal/schema"
	"github.com/Spiffical/hydrolabel/internal/taxonomy"
)

// Server wraps the MCP server with Hydrolabel tools.
type Server struct {
	mcp *server.MCPServer
	svc *review.Service
}

// New creates a new MCP server with all Hydrolabel tools registered.
func New(svc *review.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Hydrolabel",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_annotations",
		mcp.WithDescription("Full-text search through annotation labels and reviewer notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchAnnotations)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read an annotation document in canonical form, with its summary and checksum."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. 2019/clayoquot.json)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed annotation documents with their review counts."),
		mcp.WithString("task_type", mcp.Description("Optional task type filter (e.g. whale_detection)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("item_labels",
		mcp.WithDescription("Report one item's current labels, review status, and verification history."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier within the document")),
	), s.itemLabels)

	s.mcp.AddTool(mcp.NewTool("record_verification",
		mcp.WithDescription("Append a verification round to an item. Labels MUST be full "+
			"taxonomy paths; call get_taxonomy for the valid set. Read the contract first via "+
			"the get_schema_contract tool or the hydrolabel://schema-contract resource."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item identifier within the document")),
		mcp.WithString("verified_by", mcp.Required(), mcp.Description("Reviewer identifier (name or email)")),
		mcp.WithString("decisions", mcp.Required(), mcp.Description(`JSON array of label decisions, e.g. [{"label":"Anthropophony > Vessel","decision":"accepted","threshold_used":0.5}]`)),
		mcp.WithString("status", mcp.Description("Optional verification status: verified, rejected, or uncertain")),
		mcp.WithString("notes", mcp.Description("Optional free-form reviewer notes")),
	), s.recordVerification)

	s.mcp.AddTool(mcp.NewTool("get_taxonomy",
		mcp.WithDescription("Returns every valid label path in the hydrophone sound taxonomy."),
	), s.getTaxonomy)

	s.mcp.AddTool(mcp.NewTool("get_schema_contract",
		mcp.WithDescription("Returns the canonical annotation document contract. "+
			"Call this before importing predictions or recording verifications."),
	), s.getSchemaContract)

	s.mcp.AddTool(mcp.NewTool("import_predictions",
		mcp.WithDescription("Import a prediction document into the library. Provide either an "+
			"inline JSON document or an http(s) URL to fetch it from. The document is converted "+
			"to canonical form and validated before anything is written."),
		mcp.WithString("document", mcp.Description("Inline JSON document to import")),
		mcp.WithString("url", mcp.Description("http(s) URL to fetch the document from")),
		mcp.WithString("path", mcp.Description("Destination path (must end with .json); derived from the URL when omitted")),
	), s.importPredictions)

	// Resource: annotation schema contract.
	s.mcp.AddResource(
		mcp.NewResource("hydrolabel://schema-contract", "Annotation Document Contract",
			mcp.WithResourceDescription("Canonical annotation document format that all imports must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSchemaContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskType := ""
	if v, tErr := req.RequireString("task_type"); tErr == nil {
		taskType = v
	}

	docs, total, err := s.svc.ListDocuments(ctx, 0, 0, taskType, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{"documents": docs, "total": total}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) itemLabels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	detail, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	it := detail.Document.Item(itemID)
	if it == nil {
		return mcp.NewToolResultError(fmt.Sprintf("item not found: %s", itemID)), nil
	}

	labels := schema.CurrentLabels(it)
	if labels == nil {
		labels = []string{}
	}
	out, _ := json.MarshalIndent(map[string]any{
		"item_id":        it.ItemID,
		"status":         schema.ItemStatus(it),
		"current_labels": labels,
		"rounds":         len(it.Verifications),
		"model_outputs":  it.ModelOutputs,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) recordVerification(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemID, err := req.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	verifiedBy, err := req.RequireString("verified_by")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawDecisions, err := req.RequireString("decisions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var decisions []schema.LabelDecision
	if jsonErr := json.Unmarshal([]byte(rawDecisions), &decisions); jsonErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("decisions must be a JSON array of label decisions: %v", jsonErr)), nil
	}
	if len(decisions) == 0 {
		return mcp.NewToolResultError("decisions must not be empty"), nil
	}

	v := schema.Verification{
		VerifiedBy:     verifiedBy,
		LabelDecisions: decisions,
		LabelSource:    schema.SourceExpert,
	}
	if status, sErr := req.RequireString("status"); sErr == nil && status != "" {
		v.VerificationStatus = schema.Status(status)
	}
	if notes, nErr := req.RequireString("notes"); nErr == nil {
		v.Notes = notes
	}

	detail, err := s.svc.RecordVerification(ctx, path, itemID, v, "")
	if err != nil {
		if errs := schema.AsErrors(err); len(errs) > 0 {
			lines := make([]string, len(errs))
			for i, e := range errs {
				lines[i] = e.Error()
			}
			return mcp.NewToolResultError("verification rejected:\n" + strings.Join(lines, "\n")), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(detail.Summary, "", "  ")
	return mcp.NewToolResultText(fmt.Sprintf("recorded round for %s/%s\n%s", path, itemID, out)), nil
}

func (s *Server) getTaxonomy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := s.svc.Taxonomy().AllPaths()
	header := fmt.Sprintf("Label paths (levels joined by %q):\n", taxonomy.Separator)
	return mcp.NewToolResultText(header + strings.Join(paths, "\n")), nil
}

func (s *Server) getSchemaContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SchemaContract), nil
}

func (s *Server) readSchemaContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "hydrolabel://schema-contract",
			MIMEType: "text/markdown",
			Text:     SchemaContract,
		},
	}, nil
}
