package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rainbow-robot/internal/config"
	"rainbow-robot/internal/logging"
	"rainbow-robot/internal/robot"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: .env file not found: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:           "robot",
		Short:         "Rainbow voice assistant robot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(cloudCmd(), localCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cloudCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Run with OpenAI speech and language models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.BackendCloud, robot.Overrides{}, message)
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "speak a single message then exit")
	return cmd
}

func localCmd() *cobra.Command {
	var (
		message string
		o       robot.Overrides
	)
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run with whisper.cpp, Piper and Ollama on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.BackendLocal, o, message)
		},
	}
	cmd.Flags().StringVar(&o.Voice, "voice", "", "Piper voice ID (default from PIPER_VOICE)")
	cmd.Flags().StringVar(&o.STTModel, "stt-model", "", "whisper model: tiny.en, base.en, ... (default from STT_MODEL)")
	cmd.Flags().StringVar(&o.LLMModel, "llm", "", "Ollama model name (default from OLLAMA_MODEL)")
	cmd.Flags().StringVar(&o.Device, "device", "", "cuda | cpu (default from DEVICE)")
	cmd.Flags().StringVar(&message, "message", "", "speak a single message then exit")
	return cmd
}

func run(backend config.Backend, o robot.Overrides, message string) error {
	// подкоманда важнее ROBOT_BACKEND
	os.Setenv("ROBOT_BACKEND", string(backend))
	cfg, err := config.New()
	if err != nil {
		return err
	}
	robot.ApplyOverrides(cfg, o)

	log, closeLog := logging.New(logging.Options{
		FilePath:   cfg.LogFilePath,
		Level:      cfg.LogLevel,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := robot.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	if message != "" {
		return r.Say(ctx, message)
	}

	log.Info().Str("backend", string(cfg.Backend)).Str("history", cfg.HistoryPath()).Msg("rainbow robot starting")
	if err := r.Run(ctx); err != nil {
		log.Error().Err(err).Msg("robot stopped with error")
		return err
	}
	log.Info().Msg("rainbow robot stopped")
	return nil
}
