package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/conduit/internal/approval"
	"github.com/rendis/conduit/internal/engine"
	"github.com/rendis/conduit/internal/executors"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/scheduler"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/internal/validation"
	"github.com/rendis/conduit/pkg/schema"
)

func main() {
	workflowPath := flag.String("workflow", "", "path to workflow definition JSON")
	triggerJSON := flag.String("trigger", "{}", "trigger payload as inline JSON")
	businessJSON := flag.String("business", "", "business context as inline JSON")
	scheduleExpr := flag.String("schedule", "", "cron expression; keep running and fire the workflow on this schedule")
	checkOnly := flag.Bool("check", false, "validate the definition and exit")
	flag.Parse()

	if *workflowPath == "" {
		fmt.Fprintln(os.Stderr, "usage: conduit -workflow <definition.json> [-trigger '{...}'] [-business '{...}'] [-schedule '<cron>'] [-check]")
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *workflowPath, *triggerJSON, *businessJSON, *scheduleExpr, *checkOnly); err != nil {
		logger.Error("conduit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger, workflowPath, triggerJSON, businessJSON, scheduleExpr string, checkOnly bool) error {
	ctx := context.Background()

	raw, err := os.ReadFile(workflowPath)
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}

	validator, err := validation.NewDefinitionValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}
	def, err := validator.ValidateJSON(raw)
	if err != nil {
		return err
	}
	if issues := validation.CheckGraph(def); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, "issue:", issue)
		}
		return fmt.Errorf("definition has %d issue(s)", len(issues))
	}
	if checkOnly {
		fmt.Println("definition ok")
		return nil
	}

	var trigger map[string]any
	if err := json.Unmarshal([]byte(triggerJSON), &trigger); err != nil {
		return fmt.Errorf("parse trigger payload: %w", err)
	}
	var business map[string]any
	if businessJSON != "" {
		if err := json.Unmarshal([]byte(businessJSON), &business); err != nil {
			return fmt.Errorf("parse business context: %w", err)
		}
	}

	var audit *store.AuditLog
	if cfg.DBPath != "" {
		audit, err = store.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer audit.Close()
	}

	hub := streaming.NewMemoryHub()
	defer hub.Close()

	gate := approval.NewGate(&approval.LogNotifier{Logger: logger}, auditSink(audit), cfg.BaseURL, logger)
	gate.AttachHub(hub)

	registry := executors.NewRegistry()
	if err := executors.RegisterBuiltins(registry, executors.BuiltinDeps{Gate: gate}); err != nil {
		return fmt.Errorf("register executors: %w", err)
	}

	opts := []engine.Option{engine.WithHub(hub), engine.WithLogger(logger)}
	if audit != nil {
		opts = append(opts, engine.WithAudit(audit))
	}
	eng := engine.New(registry, opts...)

	if scheduleExpr != "" {
		return serve(ctx, logger, eng, hub, def, trigger, business, scheduleExpr)
	}

	results, err := eng.Run(ctx, def, trigger, business)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// serve registers the workflow on the scheduler and blocks until interrupted.
func serve(ctx context.Context, logger *slog.Logger, eng *engine.Engine, hub *streaming.MemoryHub, def *schema.Definition, trigger, business map[string]any, scheduleExpr string) error {
	sched := scheduler.New(&engineRunner{eng: eng, business: business}, logger)
	sched.Hub = hub

	id := def.Name
	if id == "" {
		id = "workflow"
	}
	if err := sched.Add(id, scheduleExpr, def, trigger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	logger.Info("scheduled mode", slog.String("schedule_id", id), slog.String("expr", scheduleExpr))

	<-ctx.Done()
	sched.Stop()
	return nil
}

// engineRunner adapts the engine to the scheduler's Runner interface.
// The results map is discarded; scheduled runs are observed through the
// event hub and the audit store.
type engineRunner struct {
	eng      *engine.Engine
	business map[string]any
}

func (r *engineRunner) RunDefinition(ctx context.Context, def *schema.Definition, trigger map[string]any) error {
	_, err := r.eng.Run(ctx, def, trigger, r.business)
	return err
}

// auditSink keeps the gate's sink nil when no store is configured;
// a typed-nil *store.AuditLog must not masquerade as a non-nil interface.
func auditSink(audit *store.AuditLog) approval.AuditSink {
	if audit == nil {
		return nil
	}
	return audit
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	switch logLevel(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(logging.NewCorrelationHandler(handler))
}
