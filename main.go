// pattern: Imperative Shell
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"treetop/internal/config"
	"treetop/internal/discovery"
	"treetop/internal/hub"
	"treetop/internal/instance"
	"treetop/internal/logging"
	"treetop/internal/ports"
	"treetop/internal/registry"
	"treetop/internal/web"
)

var version = "dev"

func main() {
	configDir := flag.StringP("config-dir", "c", "", "config directory (default: ~/.config/treetop)")
	port := flag.IntP("port", "p", 0, "dashboard port (overrides config)")
	scanPaths := flag.StringArrayP("scan", "s", nil, "path to scan for repositories (repeatable, overrides config)")
	maxDepth := flag.Int("max-depth", 0, "max scan depth (overrides config)")
	interval := flag.DurationP("interval", "i", 0, "refresh interval (overrides config)")
	status := flag.Bool("status", false, "query the running instance and exit")
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("treetop %s\n", version)
		return
	}

	if *status {
		if err := runStatus(*configDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runDaemon(*configDir, *port, *scanPaths, *maxDepth, *interval)
}

// loadConfig loads configuration from the given directory or the default
// location.
func loadConfig(configDir string) (config.Config, error) {
	if configDir != "" {
		return config.LoadFromDir(configDir)
	}
	return config.Load()
}

// runStatus queries a running daemon and prints its snapshots.
func runStatus(configDir string) error {
	dataDir := resolveDataDir(configDir)

	baseURL, err := instance.Discover(dataDir)
	if err != nil {
		return err
	}

	client := instance.NewClient(baseURL)

	workspaces, err := client.Workspaces()
	if err != nil {
		return err
	}
	agents, err := client.Agents()
	if err != nil {
		return err
	}

	fmt.Printf("treetop running at %s\n", baseURL)
	fmt.Printf("workspaces: %s\n", workspaces)
	fmt.Printf("agents: %s\n", agents)
	return nil
}

// resolveDataDir returns the runtime data directory. An explicit config
// dir doubles as the data dir so everything lives in one place.
func resolveDataDir(configDir string) string {
	if configDir != "" {
		return configDir
	}
	return config.DataDir()
}

func runDaemon(configDir string, portFlag int, scanFlags []string, depthFlag int, intervalFlag time.Duration) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if portFlag > 0 {
		cfg.Dashboard.Port = portFlag
	}
	if len(scanFlags) > 0 {
		cfg.ScanPaths = scanFlags
	}
	if depthFlag != 0 {
		cfg.MaxDepth = depthFlag
	}
	if intervalFlag > 0 {
		cfg.PollInterval = intervalFlag.String()
	}

	dataDir := resolveDataDir(configDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Acquire single-instance lock
	fl, err := instance.Lock(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer instance.Cleanup(dataDir, fl)

	logManager, err := logging.NewManager(logging.Config{
		FilePath:       filepath.Join(dataDir, "treetop.log"),
		MaxSizeMB:      10,
		MaxBackups:     3,
		MaxAgeDays:     7,
		ChannelBufSize: 1000,
		Level:          cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logManager.Close() }()

	appLogger := logManager.For("app")
	appLogger.Info("starting", "version", version)

	reg, err := registry.Open(config.RegistryPath(dataDir))
	if err != nil {
		appLogger.Error("failed to open registry", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if removed, err := reg.Cleanup(); err != nil {
		appLogger.Warn("registry cleanup failed", "error", err)
	} else if len(removed) > 0 {
		appLogger.Info("pruned dead server entries", "workspaces", removed)
	}

	h := hub.New(logManager.For("hub"))
	go h.Run()
	defer h.Stop()

	// Forward log entries to connected dashboard clients.
	go func() {
		for entry := range logManager.Entries() {
			h.Broadcast(hub.Message{Type: hub.TypeLogEntry, Payload: entry})
		}
	}()

	// External registry edits (another process touching the snapshot
	// file) propagate to clients the same way our own refreshes do.
	stopWatch, err := reg.Watch(logManager.For("registry.watch"), func() {
		broadcastSnapshots(h, reg)
	})
	if err != nil {
		appLogger.Warn("registry watch unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	// Fall back to an ephemeral port in the configured range when the
	// preferred dashboard port is taken.
	webPort := cfg.Dashboard.Port
	if webPort > 0 && !ports.IsAvailable(webPort) {
		alt, err := ports.FindAvailable(cfg.PortRange.Min, cfg.PortRange.Max)
		if err != nil {
			appLogger.Error("no dashboard port available", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		appLogger.Warn("dashboard port busy, using fallback", "configured", webPort, "port", alt)
		webPort = alt
	}

	webServer := web.New(web.Config{Bind: cfg.Dashboard.Bind, Port: webPort}, reg, h, logManager)
	ln, err := webServer.Listen()
	if err != nil {
		appLogger.Error("web server listen error", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Write port file for status/client discovery
	if err := instance.WritePort(dataDir, webServer.Addr()); err != nil {
		appLogger.Error("failed to write port file", "error", err)
	}

	go func() {
		if err := webServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			appLogger.Error("web server error", "error", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := webServer.Shutdown(ctx); err != nil {
			appLogger.Error("web server shutdown error", "error", err)
		}
	}()

	fmt.Printf("treetop dashboard at http://%s\n", webServer.Addr())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	runRefreshLoop(&cfg, reg, h, logManager.For("refresh"), stop)

	appLogger.Info("stopped")
}

// runRefreshLoop scans the configured paths on the poll interval,
// replaces the registry snapshot, and pushes updates to clients. Blocks
// until a signal arrives on stop.
func runRefreshLoop(cfg *config.Config, reg *registry.Registry, h *hub.Hub, logger *logging.ScopedLogger, stop <-chan os.Signal) {
	scanPaths := cfg.ResolveScanPaths()
	logger.Info("watching", "paths", scanPaths, "interval", cfg.Interval().String())

	refresh := func() {
		var all []*discovery.Worktree
		for _, base := range scanPaths {
			found, err := discovery.FindAll(base, cfg.MaxDepth)
			if err != nil {
				logger.Warn("scan failed", "path", base, "error", err)
				continue
			}
			all = append(all, found...)
		}

		if err := reg.ReplaceSnapshot(all); err != nil {
			logger.Error("failed to save snapshot", "error", err)
			return
		}
		logger.Debug("snapshot refreshed", "worktrees", len(all))
		broadcastSnapshots(h, reg)
	}

	refresh()

	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refresh()
		case sig := <-stop:
			logger.Info("shutting down", "signal", sig.String())
			return
		}
	}
}

// broadcastSnapshots pushes the current registry state to all connected
// clients, using the same wire shapes the REST API serves.
func broadcastSnapshots(h *hub.Hub, reg *registry.Registry) {
	h.Broadcast(hub.Message{
		Type:    hub.TypeWorkspacesUpdated,
		Payload: web.BuildWorkspaceResponses(reg.ListWorkspaces()),
	})
	h.Broadcast(hub.Message{
		Type:    hub.TypeAgentsUpdated,
		Payload: web.BuildAgentResponses(reg.ListAgents()),
	})
}
