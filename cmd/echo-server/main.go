// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Command echo-server runs a multi-loop TCP echo server.
//
// SIGHUP reloads the configuration file, SIGUSR1 logs metrics and probes,
// SIGINT and SIGTERM shut the server down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/control"
	"github.com/momentics/hioload-reactor/core/buffer"
	"github.com/momentics/hioload-reactor/internal/logging"
	"github.com/momentics/hioload-reactor/reactor"
	"github.com/momentics/hioload-reactor/server"
	"github.com/momentics/hioload-reactor/transport/tcp"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	addr := flag.String("addr", "", "listen address ip:port, overrides the config")
	threads := flag.Int("threads", -1, "number of I/O loops, overrides the config")
	flag.Parse()

	if err := run(*configPath, *addr, *threads); err != nil {
		fmt.Fprintf(os.Stderr, "echo-server: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, addr string, threads int) (control.Config, error) {
	cfg := control.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = control.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if threads >= 0 {
		cfg.Threads = threads
	}
	return cfg, cfg.Validate()
}

func run(configPath, addr string, threads int) error {
	cfg, err := loadConfig(configPath, addr, threads)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetDefault(logging.NewConsole(os.Stderr, level))
	log := logging.Default()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	store := control.NewConfigStore(cfg)

	loop, err := reactor.NewEventLoop(reactor.WithConfig(cfg), reactor.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer loop.Close()

	srv, err := server.NewServer(loop, "echo",
		server.WithConfigStore(store),
		server.WithMetrics(metrics),
		server.WithDebugProbes(probes))
	if err != nil {
		return err
	}
	srv.SetConnectionCallback(tcp.DefaultConnectionCallback)
	srv.SetMessageCallback(func(conn *tcp.Connection, buf *buffer.Buffer, _ api.Timestamp) {
		conn.SendBuffer(buf)
	})
	if err := srv.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigs)
	go func() {
		for sig := range sigs {
			switch sig {
			case syscall.SIGHUP:
				if configPath == "" {
					continue
				}
				if err := store.ReloadFile(configPath); err != nil {
					log.Errorf("reload %s: %v", configPath, err)
					continue
				}
				log.Infof("configuration reloaded from %s", configPath)
			case syscall.SIGUSR1:
				log.Infof("metrics %v probes %v", metrics.GetSnapshot(), probes.DumpState())
			default:
				log.Infof("received %s, shutting down", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := srv.Shutdown(ctx); err != nil {
					log.Errorf("shutdown: %v", err)
				}
				cancel()
				loop.Quit()
				return
			}
		}
	}()

	loop.Loop()
	return nil
}
