// Package historymcp отдает окно истории робота как MCP-инструменты.
package historymcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"rainbow-robot/internal/conversation"
	"rainbow-robot/internal/history"
)

const maxRecent = 50

// EmptyParams — инструмент без аргументов.
type EmptyParams struct{}

// RecentParams параметры history_recent
type RecentParams struct {
	Limit int `json:"limit,omitempty" mcp:"how many interactions to return, newest first (default: 3, max: 50)"`
}

// Server читает файл истории при каждом вызове, поэтому видит записи работающего робота.
type Server struct {
	fs       afero.Fs
	path     string
	capacity int
	log      zerolog.Logger
}

func New(fs afero.Fs, path string, capacity int, log zerolog.Logger) *Server {
	return &Server{fs: fs, path: path, capacity: capacity, log: log}
}

func (s *Server) open() *history.Store {
	return history.Open(s.fs, s.path, s.capacity, history.WithLogger(s.log))
}

// Register добавляет инструменты на MCP-сервер.
func (s *Server) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "history_first",
		Description: "Returns the oldest interaction still kept in the robot's history window",
	}, s.First)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "history_last",
		Description: "Returns the most recent interaction with the robot",
	}, s.Last)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "history_recent",
		Description: "Returns the most recent interactions, newest first",
	}, s.Recent)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "history_repeat",
		Description: "Returns the robot's last reply",
	}, s.Repeat)
}

func (s *Server) First(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	store := s.open()
	it, ok := store.First()
	return answer(store, conversation.QueryFirst, 0, meta(it, ok)), nil
}

func (s *Server) Last(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	store := s.open()
	it, ok := store.Last()
	return answer(store, conversation.QueryLast, 0, meta(it, ok)), nil
}

func (s *Server) Recent(ctx context.Context, _ *mcp.ServerSession, params *mcp.CallToolParamsFor[RecentParams]) (*mcp.CallToolResultFor[any], error) {
	limit := params.Arguments.Limit
	if limit <= 0 {
		limit = 3
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	store := s.open()
	items := store.Recent(limit)
	seqs := make([]uint64, 0, len(items))
	for _, it := range items {
		seqs = append(seqs, it.Sequence)
	}
	s.log.Debug().Int("limit", limit).Int("returned", len(items)).Msg("history_recent")
	return answer(store, conversation.QueryRecent, limit, map[string]any{"count": len(items), "sequence_numbers": seqs}), nil
}

func (s *Server) Repeat(ctx context.Context, _ *mcp.ServerSession, _ *mcp.CallToolParamsFor[EmptyParams]) (*mcp.CallToolResultFor[any], error) {
	store := s.open()
	text, ok := store.Repeat()
	m := map[string]any{"found": ok}
	if ok {
		m["assistant_text"] = text
	}
	return answer(store, conversation.QueryRepeat, 0, m), nil
}

func answer(store *history.Store, q conversation.QueryKind, recent int, m map[string]any) *mcp.CallToolResultFor[any] {
	m["history_size"] = store.Len()
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: conversation.AnswerHistory(store, q, recent)},
		},
		Meta: m,
	}
}

func meta(it history.Interaction, ok bool) map[string]any {
	if !ok {
		return map[string]any{"found": false}
	}
	return map[string]any{
		"found":           true,
		"sequence_number": it.Sequence,
		"timestamp":       it.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		"user_text":       it.UserText,
		"assistant_text":  it.AssistantText,
	}
}

// Describe — строка для логов при старте.
func (s *Server) Describe() string {
	return fmt.Sprintf("%s (window %d)", s.path, s.capacity)
}
