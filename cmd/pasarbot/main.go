// ABOUTME: Entry point for the pasarbot conversation server
// ABOUTME: Wires storage, dispatch, the chat platform intake, and the operator API

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/pasarbot/pasarbot/internal/adminapi"
	"github.com/pasarbot/pasarbot/internal/config"
	"github.com/pasarbot/pasarbot/internal/dispatch"
	"github.com/pasarbot/pasarbot/internal/flow"
	"github.com/pasarbot/pasarbot/internal/guard"
	"github.com/pasarbot/pasarbot/internal/mode"
	"github.com/pasarbot/pasarbot/internal/session"
	"github.com/pasarbot/pasarbot/internal/store"
	"github.com/pasarbot/pasarbot/internal/takeover"
	"github.com/pasarbot/pasarbot/internal/telegram"
	"github.com/pasarbot/pasarbot/internal/transcript"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ __   __ _ ___  __ _ _ __| |__   ___ | |_
| '_ \ / _' / __|/ _' | '__| '_ \ / _ \| __|
| |_) | (_| \__ \ (_| | |  | |_) | (_) | |_
| .__/ \__,_|___/\__,_|_|  |_.__/ \___/ \__|
|_|
`

// getConfigPath returns the path to the config file.
// Priority: PASARBOT_CONFIG env var > ./pasarbot.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PASARBOT_CONFIG"); envPath != "" {
		return envPath
	}
	return "pasarbot.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pasarbot <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the conversation server")
		fmt.Println("  health    Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	// A missing .env file is fine; real environments set variables directly
	_ = godotenv.Load()

	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Telegram.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Telegram:  enabled")
	}
	if cfg.AdminAPI.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("AdminAPI:  %s\n", cfg.AdminAPI.Addr)
	}
	fmt.Println()

	logger.Info("starting pasarbot",
		"config", configPath,
		"database", cfg.Database.Path,
		"admin_api", cfg.AdminAPI.Addr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("failed to close store", "error", closeErr)
		}
	}()

	gd := guard.New(guard.Options{
		DedupTTL:        cfg.Guard.DedupTTL,
		MaxFingerprints: cfg.Guard.MaxFingerprints,
		RateWindow:      cfg.Guard.RateWindow,
		RateCeiling:     cfg.Guard.RateCeiling,
	}, logger)
	defer gd.Close()

	sessions := session.New(st, logger, session.RetryPolicy{
		MaxAttempts:     cfg.Session.RetryMaxAttempts,
		InitialInterval: cfg.Session.RetryInitialInterval,
	})
	modes := mode.New(st, logger, cfg.Modes.ReleaseMode)
	journal := transcript.New(st, logger)

	// The sender is resolved late: the gateway needs it at construction time
	// but the Telegram adapter needs the gateway as its handler.
	sender := &switchableSender{}

	coordinator := takeover.New(st, modes, journal, sender, logger)

	gw := dispatch.New(gd, sessions, modes, coordinator, flow.NewRegistry(), journal, sender, logger, dispatch.Options{
		WelcomeCooldown: cfg.Dispatch.WelcomeCooldown,
		FlowTimeout:     cfg.Dispatch.FlowTimeout,
	})
	defer gw.Close()

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	if cfg.Telegram.Enabled {
		bot, err := telegram.New(cfg.Telegram.Token, gw, logger, telegram.Options{
			UpdateTimeout: cfg.Telegram.UpdateTimeout,
		})
		if err != nil {
			return fmt.Errorf("creating telegram adapter: %w", err)
		}
		sender.set(bot)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("telegram intake: %w", err)
				cancel()
			}
		}()
	} else {
		logger.Warn("telegram disabled, replies will be dropped")
		sender.set(dropSender{logger: logger})
	}

	if cfg.AdminAPI.Addr != "" {
		api := adminapi.New(gw, journal, cfg.AdminAPI.Token, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.ListenAndServe(runCtx, cfg.AdminAPI.Addr); err != nil {
				errCh <- fmt.Errorf("admin api: %w", err)
				cancel()
			}
		}()
	}

	<-runCtx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}

	logger.Info("pasarbot stopped")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.AdminAPI.Addr == "" {
		return fmt.Errorf("admin_api.addr is not configured, nothing to check")
	}

	url := fmt.Sprintf("http://%s/health", cfg.AdminAPI.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// switchableSender lets the gateway and the platform adapter reference each
// other without a construction cycle.
type switchableSender struct {
	mu sync.RWMutex
	s  dispatch.Sender
}

func (w *switchableSender) set(s dispatch.Sender) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.s = s
}

func (w *switchableSender) Send(ctx context.Context, userID, text string, quickReplies []string) error {
	w.mu.RLock()
	s := w.s
	w.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("no sender configured")
	}
	return s.Send(ctx, userID, text, quickReplies)
}

// dropSender discards outbound messages when no platform is enabled.
type dropSender struct {
	logger *slog.Logger
}

func (d dropSender) Send(_ context.Context, userID, text string, _ []string) error {
	d.logger.Debug("dropping reply, no platform enabled", "user_id", userID, "text", text)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
