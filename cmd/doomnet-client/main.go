package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rusty-dusty/doomnet-client/internal/client"
	"github.com/rusty-dusty/doomnet-client/internal/config"
	"github.com/rusty-dusty/doomnet-client/internal/discovery"
	"github.com/rusty-dusty/doomnet-client/internal/logging"
	"github.com/rusty-dusty/doomnet-client/internal/metrics"
	"github.com/rusty-dusty/doomnet-client/internal/session"
	"github.com/rusty-dusty/doomnet-client/internal/transport"
	"github.com/rusty-dusty/doomnet-client/internal/wire"
)

// pollInterval is how often the outer loop calls Client.Run when no game
// engine is driving the cadence itself; comfortably under one tic period
// at the fixed 35Hz simulation rate.
const pollInterval = 5 * time.Millisecond

func main() {
	cfg, showVersion, err := config.Parse()
	if showVersion {
		fmt.Printf("doomnet-client %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	l := setupLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DiscoverTime > 0 {
		runDiscover(ctx, cfg, l)
		return
	}

	if err := run(ctx, cfg, l); err != nil {
		l.Error("run_failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := logging.New(format, lvl, os.Stderr).With("app", "doomnet-client")
	logging.Set(l)
	return l
}

func runDiscover(ctx context.Context, cfg *config.Config, l *slog.Logger) {
	servers, err := discovery.Discover(ctx, cfg.DiscoverTime)
	if err != nil {
		l.Error("discover_failed", "error", err)
		return
	}
	if len(servers) == 0 {
		fmt.Println("no servers found")
		return
	}
	for _, s := range servers {
		fmt.Printf("%s  %s  players=%d/%d  %s\n", s.Addr, s.Version, s.NumPlayers, s.MaxPlayers, s.Description)
	}
}

func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	t, err := transport.ListenUDP(":0")
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer t.Close()

	cl := client.New(t, client.Config{
		Version:    version,
		PlayerName: cfg.PlayerName,
		ConnectData: wire.ConnectData{
			Drone:      cfg.Drone,
			MaxPlayers: 8,
		},
	})
	cl.SetOnConsoleMessage(func(text string) { l.Info("console_message", "text", text) })
	cl.SetOnWaitingData(func(d wire.WaitingData) {
		l.Info("waiting_data", "num_players", d.NumPlayers, "max_players", d.MaxPlayers, "ready", d.ReadyPlayers)
	})
	// No embedder-supplied input/render hooks: a bare CLI drives the
	// connection and session lifecycle only, sending zero-value tics once
	// in a game. A real front end calls SetBuildTicCmd/SetRunTic/
	// SetProcessEvents before Connect.

	if cfg.MetricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metrics.SetReadinessFunc(func() bool { return cl.ConnectionState().String() == "connected" })
		httpSrv := metrics.StartHTTP(cfg.MetricsAddr)
		defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	}

	if ok, err := cl.Connect(cfg.ServerAddr); err != nil {
		return fmt.Errorf("connect: %w", err)
	} else if !ok {
		return fmt.Errorf("connect: already connecting")
	}
	l.Info("connecting", "server", cfg.ServerAddr, "name", cfg.PlayerName)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastState := session.Disconnected
	for {
		select {
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			cl.Disconnect()
			drainUntilDisconnected(cl)
			return nil
		case <-ticker.C:
			cl.Run()
			if st := cl.State(); st != lastState {
				l.Info("session_state_changed", "from", lastState.String(), "to", st.String())
				lastState = st
			}
		}
	}
}

// drainUntilDisconnected pumps NetUpdate briefly so a graceful Disconnect's
// two-way handshake has a chance to complete before the process exits.
func drainUntilDisconnected(cl *client.Client) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cl.NetUpdate()
		if cl.ConnectionState().String() != "connected" {
			return
		}
		time.Sleep(pollInterval)
	}
}
