package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/lexsearch/lexmcp"
	"github.com/qri-io/jsonschema"
)

const searchSchemaJSON = `{
  "type": "object",
  "properties": {
    "query": { "type": "string" },
    "court": { "type": "string" },
    "titleFilter": { "type": "string" },
    "limit": { "type": "number", "default": 5 }
  },
  "required": ["query"]
}`

var searchSchema = jsonschema.Must(searchSchemaJSON)

const defaultSearchLimit = 5

type caseLawResponse struct {
	Count   int `json:"count"`
	Results []struct {
		CaseName    string   `json:"caseName"`
		Citation    []string `json:"citation"`
		Court       string   `json:"court"`
		DateFiled   string   `json:"dateFiled"`
		AbsoluteURL string   `json:"absolute_url"`
	} `json:"results"`
}

func (r *Registry) callSearchCases(ctx context.Context, args map[string]any) (lexmcp.CallToolResult, error) {
	if err := validateArgs(ctx, searchSchema, args); err != nil {
		return lexmcp.CallToolResult{}, err
	}

	query, _ := args["query"].(string)
	court, _ := args["court"].(string)
	titleFilter, _ := args["titleFilter"].(string)
	limit := defaultSearchLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	var titleGlob glob.Glob
	if titleFilter != "" {
		g, err := glob.Compile(strings.ToLower(titleFilter))
		if err != nil {
			return lexmcp.CallToolResult{}, fmt.Errorf("invalid title filter: %w", err)
		}
		titleGlob = g
	}

	resp, err := r.searchCaseLaw(ctx, query, court)
	if err != nil {
		return lexmcp.CallToolResult{}, err
	}

	var lines []string
	for _, res := range resp.Results {
		if titleGlob != nil && !titleGlob.Match(strings.ToLower(res.CaseName)) {
			continue
		}

		line := res.CaseName
		if len(res.Citation) > 0 {
			line += ", " + res.Citation[0]
		}
		var parenthetical []string
		if res.Court != "" {
			parenthetical = append(parenthetical, res.Court)
		}
		if res.DateFiled != "" {
			parenthetical = append(parenthetical, res.DateFiled)
		}
		if len(parenthetical) > 0 {
			line += fmt.Sprintf(" (%s)", strings.Join(parenthetical, ", "))
		}
		lines = append(lines, line)

		if len(lines) >= limit {
			break
		}
	}

	if len(lines) == 0 {
		return textResult("no cases matched"), nil
	}
	return textResult(strings.Join(lines, "\n")), nil
}

func (r *Registry) searchCaseLaw(ctx context.Context, query, court string) (caseLawResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "o")
	if court != "" {
		params.Set("court", court)
	}
	searchURL := fmt.Sprintf("%s/search/?%s", r.caseLawURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return caseLawResponse{}, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return caseLawResponse{}, fmt.Errorf("failed to reach case-law service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return caseLawResponse{}, fmt.Errorf("case-law service returned status %d", resp.StatusCode)
	}

	var decoded caseLawResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return caseLawResponse{}, fmt.Errorf("failed to decode search response: %w", err)
	}
	return decoded, nil
}
