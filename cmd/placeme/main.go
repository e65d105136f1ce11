package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"placeme/internal/app"
	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/shutdown"
)

func main() {
	defer shutdown.Recover()

	// .env is a development convenience; absence is not an error
	_ = godotenv.Load()

	logger.Init()
	flags := config.ParseConfigFlags()

	ctx, cancel := shutdown.NotifyContext(context.Background())
	defer cancel()

	if err := app.New().Run(ctx, flags); err != nil {
		logger.Error("server_failed", "error", err)
		fmt.Fprintln(os.Stderr, "placeme:", err)
		os.Exit(1)
	}
}
