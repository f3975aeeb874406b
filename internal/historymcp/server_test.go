package historymcp

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/history"
)

const path = "/robot/conversation_history.json"

func seed(t *testing.T, fs afero.Fs, n int) {
	t.Helper()
	store := history.Open(fs, path, 10)
	for i := 1; i <= n; i++ {
		store.Append(fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i))
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func text(t *testing.T, res *mcp.CallToolResultFor[any]) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestEmptyHistory(t *testing.T) {
	s := New(afero.NewMemMapFs(), path, 10, zerolog.Nop())
	ctx := context.Background()

	res, _ := s.First(ctx, nil, &mcp.CallToolParamsFor[EmptyParams]{})
	if text(t, res) != conversation.NoHistoryText || res.Meta["found"] != false {
		t.Fatalf("unexpected first on empty history: %q %v", text(t, res), res.Meta)
	}
	res, _ = s.Repeat(ctx, nil, &mcp.CallToolParamsFor[EmptyParams]{})
	if text(t, res) != conversation.NothingToRepeat {
		t.Fatalf("unexpected repeat: %q", text(t, res))
	}
}

func TestToolsReadWindow(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, 12)
	s := New(afero.NewReadOnlyFs(fs), path, 10, zerolog.Nop())
	ctx := context.Background()

	res, _ := s.First(ctx, nil, &mcp.CallToolParamsFor[EmptyParams]{})
	if !strings.Contains(text(t, res), "question 3") || res.Meta["sequence_number"] != uint64(3) {
		t.Fatalf("first should be oldest retained: %q %v", text(t, res), res.Meta)
	}

	res, _ = s.Last(ctx, nil, &mcp.CallToolParamsFor[EmptyParams]{})
	if !strings.Contains(text(t, res), "question 12") {
		t.Fatalf("unexpected last: %q", text(t, res))
	}

	res, _ = s.Recent(ctx, nil, &mcp.CallToolParamsFor[RecentParams]{Arguments: RecentParams{Limit: 2}})
	out := text(t, res)
	if !strings.Contains(out, "question 12") || !strings.Contains(out, "question 11") || strings.Contains(out, "question 10") {
		t.Fatalf("unexpected recent: %q", out)
	}
	if strings.Index(out, "question 12") > strings.Index(out, "question 11") {
		t.Fatalf("recent must be newest first: %q", out)
	}
	seqs := res.Meta["sequence_numbers"].([]uint64)
	if len(seqs) != 2 || seqs[0] != 12 || seqs[1] != 11 {
		t.Fatalf("unexpected sequence numbers %v", seqs)
	}

	res, _ = s.Repeat(ctx, nil, &mcp.CallToolParamsFor[EmptyParams]{})
	if !strings.Contains(text(t, res), "answer 12") || res.Meta["history_size"] != 10 {
		t.Fatalf("unexpected repeat: %q %v", text(t, res), res.Meta)
	}
}

func TestRecentLimitDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	seed(t, fs, 5)
	s := New(fs, path, 10, zerolog.Nop())

	res, _ := s.Recent(context.Background(), nil, &mcp.CallToolParamsFor[RecentParams]{})
	if res.Meta["count"] != 3 {
		t.Fatalf("default limit should be 3, got %v", res.Meta["count"])
	}
	res, _ = s.Recent(context.Background(), nil, &mcp.CallToolParamsFor[RecentParams]{Arguments: RecentParams{Limit: 500}})
	if res.Meta["count"] != 5 {
		t.Fatalf("limit should be clamped to the window, got %v", res.Meta["count"])
	}
}
