// Command server starts the async reactor-backed HTTP core with a
// handful of reference handlers registered, and shuts down gracefully
// on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/reactorhttp/reactorhttp/internal/config"
	"github.com/reactorhttp/reactorhttp/internal/demo"
	"github.com/reactorhttp/reactorhttp/internal/refserver"
	"github.com/reactorhttp/reactorhttp/internal/server"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	b := server.NewBuilder(log).
		WithWorkerCount(cfg.WorkerCount).
		WithQueueDepth(cfg.QueueDepth).
		Handle("GET", "/", demo.Hello().Fn).
		Handle("GET", "/help", demo.Help().Fn).
		Handle("GET", "/reverse", demo.Reverse().Fn).
		Handle("GET", "/toupper", demo.ToUpper().Fn).
		Handle("GET", "/hash", demo.Hash().Fn).
		Handle("GET", "/timestamp", demo.Timestamp().Fn).
		Handle("GET", "/fibonacci", demo.Fibonacci().Fn).
		Handle("POST", "/echo", demo.Echo().Fn).
		Handle("GET", "/status", refserver.StatusHandler(workers).Fn)

	srv, err := b.Build()
	if err != nil {
		log.Fatal().Err(err).Msg("building server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		srv.ShutdownGracefully()
		os.Exit(0)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	if err := srv.StartBlocking(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
