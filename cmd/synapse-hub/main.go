// Synapse coordination hub.
// One process: tool dispatch over HTTP and MCP, the collab WebSocket,
// the SSE change stream, and the read-only JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/collabchannel"
	"github.com/jaakkos/synapse/internal/dashboard"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/policy"
	"github.com/jaakkos/synapse/internal/stream"
	"github.com/jaakkos/synapse/internal/tools/hub"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file (also SYNAPSE_CONFIG)")
		demo        = flag.Bool("demo", false, "seed demo agents and a goal on startup")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("synapse-hub " + Version)
		return
	}

	tmpLogger := log.New(os.Stderr, "[synapse] ", log.LstdFlags|log.Lshortfile)
	cfg, cfgFile := loadConfig(*configPath, tmpLogger)
	policy.ApplyEnv(cfg)
	pol := policy.New(cfg)

	logger := setupLogger(pol.LogFile())
	logger.Println("Starting synapse hub...")

	svc := app.NewHubService(pol, logger)
	registry := app.NewSessionRegistry()
	docs := docsession.NewManager(pol.DocGCDelay, logger)

	archive, err := worldstate.NewArchive()
	if err != nil {
		logger.Printf("Warning: observation archive init failed: %v (search_observations disabled)", err)
		archive = nil
	}

	world := worldstate.NewEngine(svc.Bump, logger, worldstate.WithArchive(archive))
	casc := cascade.NewEngine(svc.Bump, logger)

	// Push fabric: version bumps and cascade events go out as SSE.
	broadcaster := stream.NewBroadcaster(logger)
	svc.SetBumpHook(broadcaster.PublishTick)
	casc.Subscribe(broadcaster.PublishCascade)

	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		registry.Remove(session.SessionID())
		logger.Printf("Client session unregistered: %s", session.SessionID())
	})

	mcpServer := server.NewMCPServer("synapse-hub", Version, server.WithHooks(hooks))
	hub.Register(mcpServer, hub.Deps{
		Service:  svc,
		Registry: registry,
		Docs:     docs,
		World:    world,
		Archive:  archive,
		Cascade:  casc,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lockSweeper := app.NewLockSweeper(svc, logger)
	go lockSweeper.Start(ctx)
	presenceSweeper := app.NewPresenceSweeper(svc, logger)
	go presenceSweeper.Start(ctx)
	ticker := worldstate.NewTicker(world, pol.ConvergenceTick)
	go ticker.Start(ctx)

	if cfgFile != "" {
		go policy.NewWatcher(cfgFile, pol, logger).Start(ctx)
	}

	if *demo {
		seedDemo(svc, world, logger)
	}

	httpShutdown, err := startHTTPServer(mcpServer, svc, registry, docs, world, casc, broadcaster, pol, logger)
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}

	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)
	cancel()

	httpShutdown()
	lockSweeper.Stop()
	presenceSweeper.Stop()
	ticker.Stop()
	broadcaster.Close()

	if archive != nil {
		if err := archive.Close(); err != nil {
			logger.Printf("Warning: close observation archive: %v", err)
		}
	}

	logger.Println("Hub stopped")
}

// startHTTPServer binds the control plane and serves in the background.
// Uses net.Listen to support port 0 (auto-assign) for running multiple
// instances side by side.
func startHTTPServer(
	mcpServer *server.MCPServer,
	svc *app.HubService,
	registry *app.SessionRegistry,
	docs *docsession.Manager,
	world *worldstate.Engine,
	casc *cascade.Engine,
	broadcaster *stream.Broadcaster,
	pol *policy.Policy,
	logger *log.Logger,
) (func(), error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", pol.APIPort()))
	if err != nil {
		return nil, err
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  Tool dispatch:   %s/execute", baseURL)
	logger.Printf("  MCP transport:   %s/mcp", baseURL)
	logger.Printf("  Collab channel:  %s/collab", baseURL)
	logger.Printf("  Change stream:   %s/events/stream", baseURL)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/execute", newExecuteHandler(mcpServer, logger))
	mux.Handle("/collab", collabchannel.NewHandler(docs, logger))
	mux.Handle("/events/stream", broadcaster)
	mux.Handle("/mcp", streamSrv)
	mux.Handle("/sse", sseSrv)
	mux.Handle("/sse/", sseSrv)
	mux.Handle("/message", sseSrv)
	dashboard.NewHandler(svc, registry, docs, world, casc).RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux}
	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// MCP_PORT moves the push stream to its own listener, so a reverse
	// proxy can route long-lived SSE connections separately.
	var streamServer *http.Server
	if port := pol.MCPPort(); port != 0 && port != actualPort {
		streamLn, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		streamMux := http.NewServeMux()
		streamMux.Handle("/events/stream", broadcaster)
		streamServer = &http.Server{Handler: streamMux}
		logger.Printf("Push stream on :%d", port)
		go func() {
			if err := streamServer.Serve(streamLn); err != http.ErrServerClosed {
				logger.Fatalf("Push stream server error: %v", err)
			}
		}()
	}

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		if streamServer != nil {
			if err := streamServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Push stream shutdown error: %v", err)
			}
		}
	}, nil
}

// loadConfig loads YAML config from the -config flag or SYNAPSE_CONFIG,
// falling back to defaults. Returns the path actually used so the
// watcher knows what to watch.
func loadConfig(flagPath string, logger *log.Logger) (*policy.Config, string) {
	path := flagPath
	if path == "" {
		path = os.Getenv("SYNAPSE_CONFIG")
	}
	if path == "" {
		return policy.DefaultConfig(), ""
	}
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		logger.Printf("Warning: failed to load config %s: %v, using defaults", path, err)
		return policy.DefaultConfig(), ""
	}
	return cfg, path
}

// setupLogger creates a logger that writes to a log file and optionally
// stderr. When stderr is a terminal (interactive use), logs go to both;
// when it's redirected (daemon mode), only the file, to avoid duplicate
// lines under nohup >> log 2>&1.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[synapse] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[synapse] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[synapse] ", log.LstdFlags|log.Lshortfile)
}
