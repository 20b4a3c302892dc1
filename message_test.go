package lexmcp_test

import (
	"errors"
	"testing"

	"github.com/lexsearch/lexmcp"
)

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
		wantErr bool
	}{
		{
			name:    "single object",
			body:    `{"jsonrpc":"2.0","id":"1","method":"ping"}`,
			wantLen: 1,
		},
		{
			name:    "array of messages",
			body:    `[{"jsonrpc":"2.0","id":"1","method":"ping"},{"jsonrpc":"2.0","method":"notifications/initialized"}]`,
			wantLen: 2,
		},
		{
			name:    "empty array",
			body:    `[]`,
			wantLen: 0,
		},
		{
			name:    "leading whitespace",
			body:    "\n\t {\"jsonrpc\":\"2.0\",\"id\":\"1\",\"method\":\"ping\"}",
			wantLen: 1,
		},
		{
			name:    "scalar",
			body:    `42`,
			wantErr: true,
		},
		{
			name:    "string",
			body:    `"ping"`,
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: true,
		},
		{
			name:    "truncated object",
			body:    `{"jsonrpc":"2.0",`,
			wantErr: true,
		},
		{
			name:    "array of scalars",
			body:    `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := lexmcp.DecodeBatch([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d messages", len(msgs))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msgs) != tt.wantLen {
				t.Errorf("got %d messages, want %d", len(msgs), tt.wantLen)
			}
		})
	}
}

func TestDecodeBatchInvalidBatchError(t *testing.T) {
	_, err := lexmcp.DecodeBatch([]byte(`true`))
	if !errors.Is(err, lexmcp.ErrInvalidBatch) {
		t.Fatalf("got %v, want ErrInvalidBatch", err)
	}
}

func TestPartition(t *testing.T) {
	msgs := []lexmcp.JSONRPCMessage{
		{JSONRPC: lexmcp.JSONRPCVersion, ID: "1", Method: "tools/call"},
		{JSONRPC: lexmcp.JSONRPCVersion, Method: "notifications/initialized"},
		{JSONRPC: lexmcp.JSONRPCVersion, ID: "9"},
		{JSONRPC: lexmcp.JSONRPCVersion, ID: "2", Method: "ping"},
		{JSONRPC: lexmcp.JSONRPCVersion, Method: "notifications/cancelled"},
		{JSONRPC: lexmcp.JSONRPCVersion},
	}

	requests, notifications, responses := lexmcp.Partition(msgs)

	if len(requests)+len(notifications)+len(responses) != len(msgs) {
		t.Fatalf("partition is not exhaustive: %d + %d + %d != %d",
			len(requests), len(notifications), len(responses), len(msgs))
	}

	if len(requests) != 2 {
		t.Errorf("got %d requests, want 2", len(requests))
	}
	if len(notifications) != 2 {
		t.Errorf("got %d notifications, want 2", len(notifications))
	}
	if len(responses) != 2 {
		t.Errorf("got %d responses, want 2", len(responses))
	}

	// Order is preserved within each sequence.
	if requests[0].ID != "1" || requests[1].ID != "2" {
		t.Errorf("request order not preserved: %q, %q", requests[0].ID, requests[1].ID)
	}
	if notifications[0].Method != "notifications/initialized" {
		t.Errorf("notification order not preserved: %q", notifications[0].Method)
	}
}

func TestPartitionEmpty(t *testing.T) {
	requests, notifications, responses := lexmcp.Partition(nil)
	if len(requests) != 0 || len(notifications) != 0 || len(responses) != 0 {
		t.Fatal("expected all partitions empty")
	}
}
