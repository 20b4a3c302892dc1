// Package tools implements the legal-research tool suite served over MCP: citation
// formatting, practice-domain classification, and case-law search against a remote
// CourtListener-style API.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lexsearch/lexmcp"
)

const defaultCaseLawURL = "https://www.courtlistener.com/api/rest/v4"

type handler func(ctx context.Context, args map[string]any) (lexmcp.CallToolResult, error)

// Registry implements lexmcp.ToolRegistry. Call never reports failure across the
// boundary: handler errors come back as results flagged with IsError.
type Registry struct {
	logger     *slog.Logger
	httpClient *http.Client
	caseLawURL string

	tools    []lexmcp.Tool
	handlers map[string]handler
}

// Option represents the options for the Registry.
type Option func(*Registry)

// NewRegistry creates the tool registry with the full legal-research suite.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		logger:     slog.Default(),
		httpClient: http.DefaultClient,
		caseLawURL: defaultCaseLawURL,
	}
	for _, opt := range options {
		opt(r)
	}

	r.tools = []lexmcp.Tool{
		{
			Name:        "format_citation",
			Description: "Formats a case citation from its structured parts",
			InputSchema: json.RawMessage(citationSchemaJSON),
		},
		{
			Name:        "classify_domain",
			Description: "Classifies a legal question into practice domains",
			InputSchema: json.RawMessage(classifySchemaJSON),
		},
		{
			Name:        "search_cases",
			Description: "Searches published case law for matching opinions",
			InputSchema: json.RawMessage(searchSchemaJSON),
		},
	}
	r.handlers = map[string]handler{
		"format_citation": r.callFormatCitation,
		"classify_domain": r.callClassifyDomain,
		"search_cases":    r.callSearchCases,
	}

	return r
}

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With(
			slog.String("component", "tools"),
		)
	}
}

// WithHTTPClient sets the HTTP client used for outbound case-law calls.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		r.httpClient = client
	}
}

// WithCaseLawURL sets the base URL of the case-law API.
func WithCaseLawURL(baseURL string) Option {
	return func(r *Registry) {
		r.caseLawURL = strings.TrimSuffix(baseURL, "/")
	}
}

// List returns the static tool enumeration.
func (r *Registry) List() []lexmcp.Tool {
	return r.tools
}

// Call executes the named tool with the given arguments. Unknown tools, invalid
// arguments, and handler failures all surface as IsError results.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) lexmcp.CallToolResult {
	r.logger.Debug("calling tool", slog.String("tool", name))

	h, ok := r.handlers[name]
	if !ok {
		return errorResult(fmt.Sprintf("tool not found: %s", name))
	}

	argsMap := make(map[string]any)
	if len(args) > 0 {
		if err := json.Unmarshal(args, &argsMap); err != nil {
			return errorResult(fmt.Sprintf("failed to decode arguments: %v", err))
		}
	}

	result, err := h(ctx, argsMap)
	if err != nil {
		r.logger.Warn("tool call failed",
			slog.String("tool", name),
			slog.String("err", err.Error()),
		)
		return errorResult(err.Error())
	}
	return result
}

func textResult(text string) lexmcp.CallToolResult {
	return lexmcp.CallToolResult{
		Content: []lexmcp.Content{
			{
				Type: "text",
				Text: text,
			},
		},
		IsError: false,
	}
}

func errorResult(text string) lexmcp.CallToolResult {
	return lexmcp.CallToolResult{
		Content: []lexmcp.Content{
			{
				Type: "text",
				Text: text,
			},
		},
		IsError: true,
	}
}
