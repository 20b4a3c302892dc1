package tools_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lexsearch/lexmcp/tools"
)

const searchFixture = `{
  "count": 3,
  "results": [
    {
      "caseName": "Miranda v. Arizona",
      "citation": ["384 U.S. 436"],
      "court": "Supreme Court of the United States",
      "dateFiled": "1966-06-13",
      "absolute_url": "/opinion/107252/miranda-v-arizona/"
    },
    {
      "caseName": "Terry v. Ohio",
      "citation": ["392 U.S. 1"],
      "court": "Supreme Court of the United States",
      "dateFiled": "1968-06-10",
      "absolute_url": "/opinion/107729/terry-v-ohio/"
    },
    {
      "caseName": "Mapp v. Ohio",
      "citation": [],
      "court": "",
      "dateFiled": "",
      "absolute_url": "/opinion/106596/mapp-v-ohio/"
    }
  ]
}`

func newFakeCaseLawAPI(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()

	var captured http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &captured
}

func TestSearchCases(t *testing.T) {
	api, captured := newFakeCaseLawAPI(t, http.StatusOK, searchFixture)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"custodial interrogation","court":"scotus"}`)
	if isError {
		t.Fatalf("unexpected error result: %q", text)
	}

	if got := captured.URL.Query().Get("q"); got != "custodial interrogation" {
		t.Errorf("got query %q, want %q", got, "custodial interrogation")
	}
	if got := captured.URL.Query().Get("court"); got != "scotus" {
		t.Errorf("got court %q, want %q", got, "scotus")
	}
	if got := captured.URL.Query().Get("type"); got != "o" {
		t.Errorf("got type %q, want %q", got, "o")
	}

	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d result lines, want 3:\n%s", len(lines), text)
	}
	if lines[0] != "Miranda v. Arizona, 384 U.S. 436 (Supreme Court of the United States, 1966-06-13)" {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	// A result missing citation, court, and filing date still formats cleanly.
	if lines[2] != "Mapp v. Ohio" {
		t.Errorf("unexpected bare line: %q", lines[2])
	}
}

func TestSearchCasesLimit(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusOK, searchFixture)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"ohio","limit":1}`)
	if isError {
		t.Fatalf("unexpected error result: %q", text)
	}
	if strings.Count(text, "\n") != 0 {
		t.Errorf("expected a single result line, got:\n%s", text)
	}
}

func TestSearchCasesTitleFilter(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusOK, searchFixture)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"ohio","titleFilter":"*v. ohio"}`)
	if isError {
		t.Fatalf("unexpected error result: %q", text)
	}

	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d result lines, want 2:\n%s", len(lines), text)
	}
	for _, line := range lines {
		if !strings.Contains(line, "Ohio") {
			t.Errorf("filter let through %q", line)
		}
	}
}

func TestSearchCasesInvalidTitleFilter(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusOK, searchFixture)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"ohio","titleFilter":"[unterminated"}`)
	if !isError {
		t.Fatalf("expected IsError result, got %q", text)
	}
	if !strings.Contains(text, "invalid title filter") {
		t.Errorf("unexpected message: %q", text)
	}
}

func TestSearchCasesNoMatches(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusOK, `{"count":0,"results":[]}`)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"nothing"}`)
	if isError {
		t.Fatalf("unexpected error result: %q", text)
	}
	if text != "no cases matched" {
		t.Errorf("got %q, want %q", text, "no cases matched")
	}
}

func TestSearchCasesUpstreamFailure(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusBadGateway, `oops`)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{"query":"ohio"}`)
	if !isError {
		t.Fatalf("expected IsError result, got %q", text)
	}
	if !strings.Contains(text, "502") {
		t.Errorf("unexpected message: %q", text)
	}
}

func TestSearchCasesMissingQuery(t *testing.T) {
	api, _ := newFakeCaseLawAPI(t, http.StatusOK, searchFixture)
	r := tools.NewRegistry(tools.WithCaseLawURL(api.URL))

	text, isError := callTool(t, r, "search_cases", `{}`)
	if !isError {
		t.Fatalf("expected IsError result, got %q", text)
	}
	if !strings.Contains(text, "validation failed") {
		t.Errorf("unexpected message: %q", text)
	}
}
