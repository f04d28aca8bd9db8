package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/formemu/aditim-monitor-sub000/internal/broadcast"
	"github.com/formemu/aditim-monitor-sub000/internal/config"
	"github.com/formemu/aditim-monitor-sub000/internal/daemon"
	"github.com/formemu/aditim-monitor-sub000/internal/ipc"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
	"github.com/formemu/aditim-monitor-sub000/internal/relay"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the scheduler daemon and blocks until it receives SIGINT or
// SIGTERM, ctx ends, or a client requests a stop over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("aditim-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update aditim.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "aditim-*.log", Exclude: []string{logPath}},
	)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	hub := broadcast.NewHub(broadcast.Options{
		SendBuffer:   cfg.Broadcast.SendBuffer,
		WriteTimeout: cfg.BroadcastWriteTimeout(),
		Logger:       logger,
	})

	d, err := daemon.New(cfg, st, hub, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The lock must be held before the socket is replaced, otherwise a
	// second instance would steal the running daemon's socket.
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	stopRelays := startRelays(signalCtx, cfg, hub, logger)
	defer stopRelays()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, cancel, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("aditim daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("api_address", d.APIAddress()),
		logging.String("socket", cfg.SocketPath()),
		logging.String("log_path", logPath),
	)

	<-signalCtx.Done()
	logger.Info("aditim daemon shutting down")
	return nil
}

// startRelays wires the configured relays into the hub and returns a
// function that stops them.
func startRelays(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, logger *slog.Logger) func() {
	relayCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	var closers []func() error

	if cfg.Relay.Redis.Enabled {
		r := relay.NewRedis(cfg.Relay.Redis, logger)
		hub.AddSink(r)
		closers = append(closers, r.Close)
		wg.Go(func() { r.Run(relayCtx, hub) })
		logger.Info("redis relay enabled",
			logging.String("addr", cfg.Relay.Redis.Addr),
			logging.String("channel", cfg.Relay.Redis.Channel),
			logging.String("origin", r.Origin()),
		)
	}
	if cfg.Relay.Kafka.Enabled {
		k := relay.NewKafka(cfg.Relay.Kafka, logger)
		hub.AddSink(k)
		closers = append(closers, k.Close)
		wg.Go(func() { k.Run(relayCtx) })
		logger.Info("kafka journal enabled",
			logging.String("brokers", strings.Join(cfg.Relay.Kafka.Brokers, ",")),
			logging.String("topic", cfg.Relay.Kafka.Topic),
		)
	}

	return func() {
		cancel()
		wg.Wait()
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Debug("relay close failed", logging.Error(err))
			}
		}
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "aditim.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
