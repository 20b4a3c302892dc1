package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexsearch/lexmcp"
	"github.com/qri-io/jsonschema"
)

const citationSchemaJSON = `{
  "type": "object",
  "properties": {
    "caseName": { "type": "string" },
    "volume": { "type": "number" },
    "reporter": { "type": "string" },
    "page": { "type": "number" },
    "year": { "type": "number" },
    "court": { "type": "string" }
  },
  "required": ["caseName", "volume", "reporter", "page", "year"]
}`

var citationSchema = jsonschema.Must(citationSchemaJSON)

func (r *Registry) callFormatCitation(ctx context.Context, args map[string]any) (lexmcp.CallToolResult, error) {
	if err := validateArgs(ctx, citationSchema, args); err != nil {
		return lexmcp.CallToolResult{}, err
	}

	caseName, _ := args["caseName"].(string)
	volume, _ := args["volume"].(float64)
	reporter, _ := args["reporter"].(string)
	page, _ := args["page"].(float64)
	year, _ := args["year"].(float64)
	court, _ := args["court"].(string)

	// Parenthetical carries the court only when it is not apparent from the reporter,
	// per the usual citation convention.
	parenthetical := fmt.Sprintf("%d", int(year))
	if court != "" {
		parenthetical = fmt.Sprintf("%s %d", court, int(year))
	}

	citation := fmt.Sprintf("%s, %d %s %d (%s)",
		strings.TrimSpace(caseName), int(volume), reporter, int(page), parenthetical)

	return textResult(citation), nil
}

func validateArgs(ctx context.Context, schema *jsonschema.Schema, args map[string]any) error {
	vs := schema.Validate(ctx, args)
	errs := *vs.Errs
	if len(errs) > 0 {
		var errStr []string
		for _, err := range errs {
			errStr = append(errStr, err.Message)
		}
		return fmt.Errorf("params validation failed: %s", strings.Join(errStr, ", "))
	}
	return nil
}
