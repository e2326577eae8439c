// Package main is the entry point for the CCCC daemon, ccccd.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/daemon"
	"github.com/cccc-dev/cccc/internal/ipc"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/storage"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger.
	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting ccccd", zap.String("version", version), zap.String("home", cfg.Home))

	paths := storage.New(cfg.Home)

	// 3. Acquire the single-daemon-per-CCCC_HOME lock. Losing the race is
	// not an error: another daemon already owns this home, so this
	// process exits 0 (spec §4.A, §7 "Fatal errors": "0 on clean exit,
	// including already running").
	lock, acquired, err := storage.TryAcquire(paths)
	if err != nil {
		log.Fatal("failed to acquire daemon lock", zap.Error(err))
	}
	if !acquired {
		log.Info("another ccccd already owns this CCCC_HOME, exiting")
		return
	}
	defer lock.Release()

	// 4. Build the daemon (constructs every component, starts nothing).
	// daemon.Version must be set before New, since buildDispatcher reads
	// it while registering the ping op's response payload.
	daemon.Version = version
	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Fatal("failed to construct daemon", zap.Error(err))
	}

	// 5. Open the IPC transport and publish its address for clients.
	ln, err := ipc.Listen(paths, cfg.Daemon)
	if err != nil {
		log.Fatal("failed to open ipc transport", zap.Error(err))
	}

	addr := storage.AddrDescriptor{
		Transport: cfg.Daemon.Transport,
		PID:       os.Getpid(),
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
	switch cfg.Daemon.Transport {
	case "tcp":
		addr.Host = cfg.Daemon.Host
		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			addr.Port = tcpAddr.Port // authoritative when cfg.Daemon.Port was 0
		} else {
			addr.Port = cfg.Daemon.Port
		}
	default:
		addr.Path = paths.SockFile()
	}
	if err := storage.WriteAddr(paths, addr); err != nil {
		log.Fatal("failed to write addr file", zap.Error(err))
	}
	if err := storage.WritePID(paths, os.Getpid()); err != nil {
		log.Fatal("failed to write pid file", zap.Error(err))
	}

	// 6. Run until a signal or the "shutdown" op stops the daemon.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- d.Run(ctx, ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		select {
		case err := <-runErrCh:
			if err != nil {
				log.Error("daemon run error", zap.Error(err))
			}
		case <-time.After(10 * time.Second):
			log.Warn("daemon did not shut down within timeout")
		}
	case err := <-runErrCh:
		// The daemon stopped on its own (e.g. a client's "shutdown" op).
		if err != nil {
			log.Error("daemon run error", zap.Error(err))
		}
	}

	// 7. Clean exit: drop the lock's runtime files so the next start
	// doesn't have to reconcile stale state (spec §5 "Cancellation").
	storage.RemoveRuntimeFiles(paths)
	log.Info("ccccd stopped")
}
