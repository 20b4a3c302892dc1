package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lexsearch/lexmcp"
	"github.com/qri-io/jsonschema"
)

const classifySchemaJSON = `{
  "type": "object",
  "properties": {
    "question": { "type": "string" }
  },
  "required": ["question"]
}`

var classifySchema = jsonschema.Must(classifySchemaJSON)

type domainPattern struct {
	domain  string
	pattern *regexp.Regexp
}

// Ordered so the primary domain is deterministic when several match.
var domainPatterns = []domainPattern{
	{"contracts", regexp.MustCompile(`(?i)\b(contract|breach|agreement|consideration|offer|acceptance|warranty)\b`)},
	{"torts", regexp.MustCompile(`(?i)\b(negligence|tort|liability|injury|damages|duty of care|malpractice)\b`)},
	{"criminal", regexp.MustCompile(`(?i)\b(crime|criminal|felony|misdemeanor|prosecution|indictment|sentencing)\b`)},
	{"property", regexp.MustCompile(`(?i)\b(property|deed|easement|landlord|tenant|lease|zoning|foreclosure)\b`)},
	{"family", regexp.MustCompile(`(?i)\b(divorce|custody|marriage|alimony|adoption|prenuptial)\b`)},
	{"employment", regexp.MustCompile(`(?i)\b(employment|wrongful termination|discrimination|harassment|wage|overtime)\b`)},
	{"intellectual_property", regexp.MustCompile(`(?i)\b(patent|trademark|copyright|trade secret|infringement)\b`)},
	{"immigration", regexp.MustCompile(`(?i)\b(visa|immigration|asylum|deportation|naturalization|citizenship)\b`)},
}

func (r *Registry) callClassifyDomain(ctx context.Context, args map[string]any) (lexmcp.CallToolResult, error) {
	if err := validateArgs(ctx, classifySchema, args); err != nil {
		return lexmcp.CallToolResult{}, err
	}

	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return lexmcp.CallToolResult{}, fmt.Errorf("question must not be empty")
	}

	var matched []string
	for _, dp := range domainPatterns {
		if dp.pattern.MatchString(question) {
			matched = append(matched, dp.domain)
		}
	}

	if len(matched) == 0 {
		return textResult("primary: general"), nil
	}
	return textResult(fmt.Sprintf("primary: %s\nmatched: %s",
		matched[0], strings.Join(matched, ", "))), nil
}
