package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"rainbow-robot/internal/config"
	"rainbow-robot/internal/historymcp"
)

func main() {
	// stdout занят транспортом MCP, поэтому логируем только в stderr.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg(".env file not found")
	}
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// только чтение: сервер не должен трогать файл робота
	fs := afero.NewReadOnlyFs(afero.NewOsFs())
	historyServer := historymcp.New(fs, cfg.HistoryPath(), cfg.HistoryCapacity, log)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rainbow-robot-history-mcp",
		Version: "1.0.0",
	}, nil)
	historyServer.Register(server)

	log.Info().
		Str("history", historyServer.Describe()).
		Strs("tools", []string{"history_first", "history_last", "history_recent", "history_repeat"}).
		Msg("starting history MCP server on stdin/stdout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
