// Package mcp exposes the engine over the Model Context Protocol so editors
// and agent hosts can ingest sources and ask questions against them.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/inkbase/inkbase/internal/engine"
	"github.com/inkbase/inkbase/internal/research"
)

// Server wraps the MCP SDK server around the engine.
type Server struct {
	mcpServer  *mcp.Server
	engine     *engine.Engine
	summarizer *research.Summarizer
	fetcher    *research.PageFetcher
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// NewServer creates an MCP server exposing the engine's operations as tools.
// The summarizer and fetcher are optional; their tools are only registered
// when present.
func NewServer(cfg Config, eng *engine.Engine, sum *research.Summarizer, fetcher *research.PageFetcher) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		engine:     eng,
		summarizer: sum,
		fetcher:    fetcher,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocks until ctx is done or the
// transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	register := []func() error{
		s.registerIngestSource,
		s.registerAskProject,
		s.registerDeleteSource,
	}
	if s.fetcher != nil {
		register = append(register, s.registerFetchPage)
	}
	if s.summarizer != nil {
		register = append(register, s.registerSummarizeTopic)
	}
	for _, fn := range register {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// IngestSourceInput defines the input schema for ingest_source.
type IngestSourceInput struct {
	SourceID string `json:"source_id" jsonschema:"Stable identifier of the source, e.g. a file path or URL"`
	Text     string `json:"text" jsonschema:"Full text of the source. Empty text removes the source from the index"`
}

func (s *Server) registerIngestSource() error {
	inputSchema, err := jsonschema.For[IngestSourceInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "ingest_source",
		Description: "Index the full text of a source for later question answering. Re-ingesting the same source_id replaces its previous content.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in IngestSourceInput) (*mcp.CallToolResult, any, error) {
		count, err := s.engine.Ingest(ctx, in.SourceID, in.Text)
		if err != nil {
			return toolError(fmt.Sprintf("ingesting %q: %v", in.SourceID, err)), nil, nil
		}
		if count == 0 {
			return toolText(fmt.Sprintf("Source %q removed from the index (no content).", in.SourceID)), nil, nil
		}
		return toolText(fmt.Sprintf("Indexed source %q in %d chunks.", in.SourceID, count)), nil, nil
	})
	return nil
}

// AskProjectInput defines the input schema for ask_project.
type AskProjectInput struct {
	Question  string   `json:"question" jsonschema:"The question to answer"`
	SourceIDs []string `json:"source_ids" jsonschema:"Source identifiers to search. Only these sources ground the answer"`
}

func (s *Server) registerAskProject() error {
	inputSchema, err := jsonschema.For[AskProjectInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "ask_project",
		Description: "Answer a question using only the listed ingested sources. Returns the answer plus which sources grounded it.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in AskProjectInput) (*mcp.CallToolResult, any, error) {
		answer, err := s.engine.AnswerQuestion(ctx, in.Question, in.SourceIDs)
		if err != nil {
			return toolError(fmt.Sprintf("answering question: %v", err)), nil, nil
		}

		var b strings.Builder
		b.WriteString(answer.Text)
		if answer.Grounded {
			seen := make(map[string]bool)
			var sources []string
			for _, m := range answer.Matches {
				if !seen[m.SourceID] {
					seen[m.SourceID] = true
					sources = append(sources, m.SourceID)
				}
			}
			b.WriteString("\n\nGrounded on: ")
			b.WriteString(strings.Join(sources, ", "))
		}
		return toolText(b.String()), nil, nil
	})
	return nil
}

// DeleteSourceInput defines the input schema for delete_source.
type DeleteSourceInput struct {
	SourceID string `json:"source_id" jsonschema:"Identifier of the source to remove from the index"`
}

func (s *Server) registerDeleteSource() error {
	inputSchema, err := jsonschema.For[DeleteSourceInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "delete_source",
		Description: "Remove every indexed entry of a source. Deleting an unknown source is a no-op.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in DeleteSourceInput) (*mcp.CallToolResult, any, error) {
		if err := s.engine.DeleteSource(ctx, in.SourceID); err != nil {
			return toolError(fmt.Sprintf("deleting %q: %v", in.SourceID, err)), nil, nil
		}
		return toolText(fmt.Sprintf("Source %q removed from the index.", in.SourceID)), nil, nil
	})
	return nil
}

// FetchPageInput defines the input schema for fetch_page.
type FetchPageInput struct {
	URL    string `json:"url" jsonschema:"HTTP or HTTPS URL of the page to fetch"`
	Ingest bool   `json:"ingest,omitempty" jsonschema:"When true, index the extracted text under the URL as source_id"`
}

func (s *Server) registerFetchPage() error {
	inputSchema, err := jsonschema.For[FetchPageInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "fetch_page",
		Description: "Fetch a web page and extract its readable text, optionally ingesting it as a source.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in FetchPageInput) (*mcp.CallToolResult, any, error) {
		page, err := s.fetcher.Fetch(ctx, in.URL)
		if err != nil {
			return toolError(fmt.Sprintf("fetching %q: %v", in.URL, err)), nil, nil
		}
		if !in.Ingest {
			return toolText(fmt.Sprintf("%s\n\n%s", page.Title, page.Text)), nil, nil
		}

		count, err := s.engine.Ingest(ctx, page.URL, page.Text)
		if err != nil {
			return toolError(fmt.Sprintf("ingesting %q: %v", page.URL, err)), nil, nil
		}
		return toolText(fmt.Sprintf("Fetched %q and indexed it as %q in %d chunks.", page.Title, page.URL, count)), nil, nil
	})
	return nil
}

// SummarizeTopicInput defines the input schema for summarize_topic.
type SummarizeTopicInput struct {
	Topic string `json:"topic" jsonschema:"Topic to produce a short factual briefing on"`
}

func (s *Server) registerSummarizeTopic() error {
	inputSchema, err := jsonschema.For[SummarizeTopicInput](nil)
	if err != nil {
		return fmt.Errorf("creating input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "summarize_topic",
		Description: "Generate a 5-6 line factual briefing on a topic, suitable for ingesting as a source.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in SummarizeTopicInput) (*mcp.CallToolResult, any, error) {
		summary, err := s.summarizer.Summarize(ctx, in.Topic)
		if err != nil {
			return toolError(fmt.Sprintf("summarizing %q: %v", in.Topic, err)), nil, nil
		}
		return toolText(summary), nil, nil
	})
	return nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
