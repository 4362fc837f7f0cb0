// Package app is cortexd's composition root: it wires the substrate I/O
// layer, the LLM session launcher, the four role shims, the conversation
// and rate-limit managers, the supporting schedulers, the reports store,
// and the HTTP/WebSocket edge into one running Orchestrator, per the
// dependency order in spec §2 ("Clock -> FileSystem -> FileLock ->
// Reader/Writer/Appender -> Compactor/Archiver -> Conversation/RateLimit
// managers -> Launcher -> Role shims -> Orchestrator -> HTTP edge").
// cmd/cortexd's run command calls Build; its migrate command calls
// EnsureSubstrate.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sipeed/cortexd/pkg/clock"
	"github.com/sipeed/cortexd/pkg/config"
	"github.com/sipeed/cortexd/pkg/conversation"
	"github.com/sipeed/cortexd/pkg/gateway"
	"github.com/sipeed/cortexd/pkg/gateway/slack"
	"github.com/sipeed/cortexd/pkg/httpapi"
	"github.com/sipeed/cortexd/pkg/launcher"
	"github.com/sipeed/cortexd/pkg/logger"
	"github.com/sipeed/cortexd/pkg/orchestrator"
	"github.com/sipeed/cortexd/pkg/prompts"
	"github.com/sipeed/cortexd/pkg/ratelimit"
	"github.com/sipeed/cortexd/pkg/reports"
	"github.com/sipeed/cortexd/pkg/roles"
	"github.com/sipeed/cortexd/pkg/schedulers"
	"github.com/sipeed/cortexd/pkg/substrate"
)

// App bundles every long-lived component the run command needs, so it can
// start the orchestrator loop, the HTTP edge, and any gateway connectors
// together and stop them together.
type App struct {
	Cfg     *config.Config
	Orch    *orchestrator.Orchestrator
	Server  *httpapi.Server
	Hub     *httpapi.Hub
	Reports *reports.Store

	connectors []gateway.Connector
}

// Build wires every component from cfg. substrateRoot is created if
// missing, along with the archive/report subdirectories spec §3 names.
func Build(cfg *config.Config) (*App, error) {
	root := cfg.SubstratePath
	if root == "" {
		root = "substrate"
	}

	fs := substrate.NewOSFilesystem()
	clk := clock.New()
	layout := substrate.DefaultLayout()

	if err := EnsureSubstrate(fs, root, layout); err != nil {
		return nil, err
	}

	lock := substrate.NewFileLock()
	reader := substrate.NewReader(fs, root, layout, true)
	writer := substrate.NewOverwriteWriter(fs, reader, lock, layout)
	appender := substrate.NewAppendWriter(fs, reader, lock, layout, root, clk, substrate.DefaultRotationThreshold)

	llmLauncher, err := buildLauncher(cfg)
	if err != nil {
		return nil, err
	}

	perms := roles.DefaultPermissionMatrix()
	classifier := roles.DefaultClassifier{}
	promptBuilder := prompts.New("")

	modelFor := func(op string) string {
		if classifier.Tier(op) == roles.TierStrategic {
			return firstNonEmpty(cfg.StrategicModel, cfg.Model)
		}
		return firstNonEmpty(cfg.TacticalModel, cfg.Model)
	}

	ego := &roles.Ego{Launcher: llmLauncher, Prompts: promptBuilder, Reader: reader, Appender: appender, Perms: perms, Model: modelFor("ego.decide")}
	sub := &roles.Subconscious{Launcher: llmLauncher, Prompts: promptBuilder, Writer: writer, Appender: appender, Perms: perms, Model: modelFor("subconscious.execute")}
	super := &roles.Superego{Launcher: llmLauncher, Prompts: promptBuilder, Appender: appender, Perms: perms, Model: modelFor("superego.audit")}
	id := &roles.Id{Launcher: llmLauncher, Prompts: promptBuilder, Reader: reader, Appender: appender, Model: modelFor("id.detectIdle")}

	convSubstrate := orchestrator.ConversationSubstrate{Reader: reader, Appender: appender}
	summarizer := conversationSummarizer{launcher: llmLauncher, model: modelFor("conversation.compact")}
	compactor := conversation.NewCompactor(summarizer)

	var archiver *conversation.Archiver
	if cfg.ConversationArchive.Enabled {
		archiveDir := filepath.Join(root, "archive", "conversation")
		archiver = conversation.NewArchiver(conversation.ArchiveConfig{
			Enabled:         cfg.ConversationArchive.Enabled,
			LinesToKeep:     cfg.ConversationArchive.LinesToKeep,
			SizeThreshold:   cfg.ConversationArchive.SizeThreshold,
			TimeThresholdMs: int64(cfg.ConversationArchive.TimeThresholdDays) * 24 * time.Hour.Milliseconds(),
		}, archiveWriter{fs: fs, dir: archiveDir}, clk.Now)
	}

	convManager := conversation.NewManager(convSubstrate, convSubstrate, convSubstrate, conversation.DefaultPermissions(), compactor, archiver, clk.Now)

	rateLimitState := ratelimit.NewStateManager(reader, writer, appender, clk)

	reportDir := filepath.Join(root, "reports")
	reportStore, err := reports.Open(reportDir)
	if err != nil {
		return nil, err
	}

	hub := httpapi.NewHub()

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.SuperegoAuditInterval = cfg.SuperegoAuditInterval
	orchCfg.AutonomyReminderInterval = cfg.AutonomyReminderInterval

	reconsideration := &orchestrator.Reconsideration{Launcher: llmLauncher, Prompts: promptBuilder, Model: modelFor("reconsider")}
	idleHandler := newIdleHandler(id, writer, reader)

	orch := orchestrator.New(&orchestrator.Orchestrator{
		Ego:             ego,
		Subconscious:    sub,
		Superego:        super,
		Id:              id,
		Reader:          reader,
		Conversation:    convManager,
		RateLimit:       rateLimitState,
		Reconsideration: reconsideration,
		IdleHandler:     idleHandler,
		TickLauncher:    llmLauncher,
		TickPrompts:     promptBuilder,
		TickModel:       modelFor("tick"),
		Clock:           clk,
		Sink:            hub,
		Cfg:             orchCfg,
		ShutdownFunc:    func(code int) { os.Exit(code) },
	})

	configDir := filepath.Join(root, "config")
	runner := schedulers.NewRunner(func(name string, data map[string]any) {
		hub.Emit(orchestrator.Event{Type: schedulerEvent(name), Timestamp: clk.Now(), Data: data})
	},
		schedulers.NewBackup(fs, root, cfg.BackupPath, configDir, cfg.BackupRetentionCount, cfg.BackupCron),
		schedulers.NewEmail(fs, reader, configDir, cfg.Email.Recipients, cfg.Email.Enabled, cfg.Email.Cron),
		schedulers.NewHealth(
			func() map[string]any { return metricsToMap(orch.MetricsSnapshot()) },
			func() map[string]any { return cacheStatsToMap(reader.Stats()) },
			nil,
			cfg.HealthCron,
		),
	)
	orch.SchedulerTick = func(ctx context.Context, now time.Time) {
		runner.TickAll(ctx, now, func(name string, err error) {
			logger.WarnCF("app", "scheduler tick failed", map[string]any{"scheduler": name, "error": err.Error()})
		})
	}
	orch.ReportSink = func(cycle int64, findings []string, summary string) {
		if _, err := reportStore.Save(cycle, clk.Now(), summary, findings); err != nil {
			logger.WarnCF("app", "failed to persist governance report", map[string]any{"error": err.Error()})
		}
	}

	server := httpapi.New(&httpapi.Server{
		Orch:        orch,
		Reader:      reader,
		Reports:     reportStore,
		Hub:         hub,
		BearerToken: cfg.BearerToken,
	})

	app := &App{Cfg: cfg, Orch: orch, Server: server, Hub: hub, Reports: reportStore}

	if cfg.GatewaySlackToken != "" {
		app.connectors = append(app.connectors, slack.New(cfg.GatewaySlackToken, cfg.GatewaySlackAppToken, server.GatewaySink(orch)))
	}

	return app, nil
}

// Run starts every gateway connector and blocks running the orchestrator's
// cycle or tick loop until ctx is cancelled. The WebSocket hub is already
// wired as the orchestrator's Sink by Build.
func (a *App) Run(ctx context.Context) error {
	for _, c := range a.connectors {
		if err := c.Start(ctx); err != nil {
			logger.WarnCF("app", "gateway connector failed to start", map[string]any{"connector": c.Name(), "error": err.Error()})
		}
	}
	defer func() {
		for _, c := range a.connectors {
			_ = c.Stop(ctx)
		}
	}()

	if err := a.Orch.Start(); err != nil {
		return fmt.Errorf("app: starting orchestrator: %w", err)
	}

	if a.Cfg.Mode == "tick" {
		a.Orch.RunTickLoop(ctx)
	} else {
		a.Orch.RunLoop(ctx)
	}
	return nil
}

// EnsureSubstrate creates root's subdirectories and seeds any missing
// identifier file from layout with minimal placeholder content. It is
// idempotent, so both Build and `cortexd migrate` (bringing an
// older/partial substrate tree up to the current layout) call it safely.
func EnsureSubstrate(fs substrate.Filesystem, root string, layout map[substrate.Identifier]substrate.FileSpec) error {
	if err := fs.Mkdir(root, true); err != nil {
		return fmt.Errorf("app: creating substrate root: %w", err)
	}
	for _, dir := range []string{"progress", "archive/conversation", "reports", "config"} {
		if err := fs.Mkdir(filepath.Join(root, dir), true); err != nil {
			return fmt.Errorf("app: creating %s: %w", dir, err)
		}
	}
	for id, spec := range layout {
		path := filepath.Join(root, spec.RelPath)
		if fs.Exists(path) {
			continue
		}
		seed := fmt.Sprintf("# %s\n", id)
		if id == substrate.PLAN {
			seed += "\n## Tasks\n"
		}
		if err := fs.WriteFile(path, []byte(seed), 0o644); err != nil {
			return fmt.Errorf("app: seeding %s: %w", id, err)
		}
	}
	restartContext := filepath.Join(root, "RESTART_CONTEXT.md")
	if !fs.Exists(restartContext) {
		if err := fs.WriteFile(restartContext, []byte("# Restart Context\n\nNo hibernation in progress.\n"), 0o644); err != nil {
			return fmt.Errorf("app: seeding RESTART_CONTEXT: %w", err)
		}
	}
	return nil
}

// newIdleHandler adapts roles.Id into an orchestrator.IdleHandler: once
// MaxConsecutiveIdleCycles is hit, ask Id for new goal candidates against a
// snapshot of the agent's standing context, append the first accepted
// candidate to PLAN's Tasks section, and record the drive in PROGRESS.
func newIdleHandler(id *roles.Id, writer *substrate.Writer, reader *substrate.Reader) orchestrator.IdleHandlerFunc {
	return func(ctx context.Context) (orchestrator.IdleOutcome, error) {
		idle, err := id.DetectIdle()
		if err != nil {
			return orchestrator.IdleNotIdle, err
		}
		if !idle {
			return orchestrator.IdleNotIdle, nil
		}

		snapshot := map[substrate.Identifier]string{}
		for _, ident := range []substrate.Identifier{substrate.VALUES, substrate.CHARTER, substrate.MEMORY} {
			read, rerr := reader.Read(ident)
			if rerr != nil {
				continue
			}
			snapshot[ident] = read.Raw
		}

		drives := id.GenerateDrives(ctx, snapshot)
		if len(drives.GoalCandidates) == 0 {
			return orchestrator.IdleNoGoals, nil
		}

		planRead, err := reader.Read(substrate.PLAN)
		if err != nil {
			return orchestrator.IdleNoGoals, err
		}

		candidate := drives.GoalCandidates[0]
		if err := writer.Write(substrate.PLAN, substrate.AddTask(planRead.Raw, candidate)); err != nil {
			return orchestrator.IdleAllRejected, err
		}
		if err := id.LogDrives(fmt.Sprintf("generated new goal: %s", candidate)); err != nil {
			logger.WarnCF("app", "failed to log generated drive", map[string]any{"error": err.Error()})
		}
		return orchestrator.IdlePlanCreated, nil
	}
}

func buildLauncher(cfg *config.Config) (launcher.Launcher, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.WarnCF("app", "ANTHROPIC_API_KEY unset, falling back to the in-memory fake launcher", nil)
		return launcher.NewFake(), nil
	}
	model := firstNonEmpty(cfg.Model, "claude-sonnet-4-5")
	return launcher.NewAnthropicLauncher(apiKey, model, 4096, launcher.NewProcessTracker()), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func metricsToMap(m orchestrator.Metrics) map[string]any {
	return map[string]any{
		"total": m.Total, "successful": m.Successful, "failed": m.Failed,
		"idle": m.Idle, "consecutiveIdle": m.ConsecutiveIdle, "audits": m.Audits,
	}
}

func cacheStatsToMap(c substrate.CacheStats) map[string]any {
	return map[string]any{"hits": c.Hits, "misses": c.Misses}
}

func schedulerEvent(name string) orchestrator.EventType {
	switch name {
	case "backup":
		return orchestrator.EventBackupComplete
	case "email":
		return orchestrator.EventEmailSent
	case "health":
		return orchestrator.EventHealthCheckComplete
	default:
		return orchestrator.EventMetricsCollected
	}
}

// conversationSummarizer adapts the shared launcher into
// conversation.Summarizer, per spec §4.7's compactor step.
type conversationSummarizer struct {
	launcher launcher.Launcher
	model    string
}

func (s conversationSummarizer) Summarize(ctx context.Context, lines string) (string, error) {
	result, err := s.launcher.Launch(ctx, launcher.Request{
		SystemPrompt: "Summarize the following conversation log into a short plain-text paragraph.",
		InitialUser:  lines,
	}, launcher.Options{Model: s.model})
	if err != nil {
		return "", err
	}
	return result.RawOutput, nil
}

// archiveWriter adapts the shared Filesystem into conversation.ArchiveWriter.
type archiveWriter struct {
	fs  substrate.Filesystem
	dir string
}

func (w archiveWriter) WriteArchive(name, content string) error {
	if err := w.fs.Mkdir(w.dir, true); err != nil {
		return err
	}
	return w.fs.WriteFile(filepath.Join(w.dir, name), []byte(content), 0o644)
}
