package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"little-giant/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Logging ----
	inLambda := os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel()})
	if inLambda {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()})
	}
	logger := slog.New(h)
	slog.SetDefault(logger)

	args := os.Args[1:]
	if inLambda && len(args) == 0 {
		args = []string{"lambda"}
	}

	code := commands.Execute(ctx, args, commands.Dependencies{
		Getenv: os.Getenv,
		Stdout: os.Stdout,
		Logger: logger,
	})
	stop()
	os.Exit(code)
}

func logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
