// Command changewatch monitors a web page, URL or file and POSTs a JSON
// notification to a webhook when its text changes.
//
// Usage:
//
//	changewatch -config changewatch.yaml
//	changewatch -url https://shop.example.com/item -webhook https://hooks.example.com/in -scope keywords -keywords "price, stock"
//	changewatch -http https://status.example.com -selector "#incidents" -webhook ... -listen :8088
//	changewatch -file /var/www/status.html -webhook ... -mcp stdio
//
// Without -webhook (or monitor.endpoint_url in the config file) the daemon
// resumes the last running configuration from its settings database, if
// any, and otherwise waits for a start command on the control API or MCP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagewatch/changewatch"
	"github.com/hazyhaar/pagewatch/changewatch/change"
)

type flags struct {
	configPath string
	pageURL    string
	httpURL    string
	filePath   string
	webhook    string
	scope      string
	keywords   string
	selector   string
	interval   int
	listen     string
	mcpMode    string
	statePath  string
	logLevel   string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a YAML, TOML or JSON config file")
	flag.StringVar(&f.pageURL, "url", "", "watch a live page in Chrome")
	flag.StringVar(&f.httpURL, "http", "", "watch a URL by plain HTTP polling")
	flag.StringVar(&f.filePath, "file", "", "watch a local file")
	flag.StringVar(&f.webhook, "webhook", "", "endpoint URL notified on relevant changes")
	flag.StringVar(&f.scope, "scope", "", "all | text | keywords | symbols")
	flag.StringVar(&f.keywords, "keywords", "", "comma-separated trigger keywords")
	flag.StringVar(&f.selector, "selector", "", "CSS selector of the monitored subtree")
	flag.IntVar(&f.interval, "interval", 0, "polling interval in seconds (1-300)")
	flag.StringVar(&f.listen, "listen", "", "control API listen address, e.g. :8088")
	flag.StringVar(&f.mcpMode, "mcp", "", "expose MCP tools: stdio | http (at /mcp on -listen)")
	flag.StringVar(&f.statePath, "state", "", "settings database path")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("changewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if cfg.Target.URL == "" && cfg.Target.Path == "" {
		fmt.Fprintln(os.Stderr, "usage: changewatch -config <file> | -url <url> | -http <url> | -file <path> [-webhook <url>]")
		os.Exit(2)
	}
	if err := checkSurfaces(cfg, f.mcpMode); err != nil {
		return err
	}

	m := changewatch.New(cfg, logger, changewatch.WithObserver(func(ev changewatch.Event) {
		logger.Info("changewatch: event", "kind", ev.Kind, "session", ev.Session, "detail", ev.Detail)
	}))
	if err := m.Open(ctx); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer m.Close()

	if cfg.Monitor.EndpointURL != "" {
		if err := m.Start(ctx, cfg.Monitor); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	} else {
		resumed, err := m.Resume(ctx)
		if err != nil {
			logger.Warn("changewatch: resume failed", "error", err)
		}
		if !resumed && cfg.Control.Listen == "" && f.mcpMode == "" {
			return errors.New("no webhook configured, nothing to resume and no control surface")
		}
	}

	var mcpSrv *mcp.Server
	if f.mcpMode != "" {
		mcpSrv = mcp.NewServer(&mcp.Implementation{Name: "changewatch", Version: "1.0.0"}, nil)
		m.RegisterMCP(mcpSrv)
	}
	if f.mcpMode == "stdio" {
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("changewatch: mcp stdio", "error", err)
			}
		}()
	}

	var srv *http.Server
	if cfg.Control.Listen != "" {
		r := chi.NewRouter()
		if f.mcpMode == "http" {
			h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
			r.Handle("/mcp", m.Authorize(h))
		}
		r.Mount("/", m.Routes())

		srv = &http.Server{
			Addr:              cfg.Control.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("changewatch: control API listening", "addr", cfg.Control.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("changewatch: control API", "error", err)
			}
		}()
	}

	<-ctx.Done()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}

// checkSurfaces rejects control surface combinations that would serve
// nothing.
func checkSurfaces(cfg *changewatch.Config, mcpMode string) error {
	switch mcpMode {
	case "", "stdio":
	case "http":
		if cfg.Control.Listen == "" {
			return errors.New("-mcp http needs -listen (or control.listen)")
		}
	default:
		return fmt.Errorf("-mcp: unknown mode %q, want stdio or http", mcpMode)
	}
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f flags) (*changewatch.Config, error) {
	cfg := changewatch.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = changewatch.LoadConfigFile(f.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	switch {
	case f.pageURL != "":
		cfg.Target = changewatch.TargetConfig{Kind: changewatch.TargetPage, URL: f.pageURL}
	case f.httpURL != "":
		cfg.Target = changewatch.TargetConfig{Kind: changewatch.TargetHTTP, URL: f.httpURL}
	case f.filePath != "":
		cfg.Target = changewatch.TargetConfig{Kind: changewatch.TargetFile, Path: f.filePath}
	}

	mc := &cfg.Monitor
	if f.webhook != "" {
		mc.EndpointURL = f.webhook
	}
	if f.scope != "" {
		mc.Scope = change.Scope(f.scope)
	}
	if f.keywords != "" {
		mc.Keywords = changewatch.ParseKeywords(f.keywords)
	}
	if f.selector != "" {
		mc.TargetSelector = f.selector
	}
	if f.interval != 0 {
		mc.PollIntervalSeconds = changewatch.ClampInterval(f.interval)
	}
	if f.listen != "" {
		cfg.Control.Listen = f.listen
	}
	if f.statePath != "" {
		cfg.State.Path = f.statePath
	}
	cfg.Monitor = cfg.Monitor.Normalize()
	return cfg, nil
}
