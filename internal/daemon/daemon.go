// Package daemon runs the worklog background process: it owns the
// durable store, wires the tracking services together, serves the CLI
// over the Unix socket, and tails Claude Code transcripts.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/config"
	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/goal"
	"github.com/anthropic/worklog/internal/ipc"
	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/project"
	"github.com/anthropic/worklog/internal/session"
	"github.com/anthropic/worklog/internal/source"
	"github.com/anthropic/worklog/internal/stats"
	"github.com/anthropic/worklog/internal/store"
	"github.com/anthropic/worklog/internal/summary"
)

// Services is the wired service graph the daemon (and tests) operate on.
type Services struct {
	Config    *config.Config
	DB        *kv.SQLite // nil when running degraded in-memory
	Store     *store.Store
	Bus       *events.Bus
	Detector  *project.Detector
	Manager   *session.Manager
	Goals     *goal.Service
	Stats     *stats.Service
	Summaries *summary.Service
	Adapter   *source.Adapter
}

// BuildServices opens storage and wires every service. A failed database
// open degrades to in-memory state rather than refusing to start; the
// degradation is logged once here. lm may be nil.
func BuildServices(cfg *config.Config, lm llm.Capability) *Services {
	svc := &Services{Config: cfg, Bus: events.NewBus()}

	var db kv.KV
	sqlite, err := kv.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Printf("daemon: opening %s failed, running in-memory: %v", cfg.DBPath, err)
		db = kv.NewMemory()
	} else {
		svc.DB = sqlite
		db = sqlite
	}

	snapCfg := model.SnapshotConfig{
		MaxInactivityMinutes:          cfg.MaxInactivityMinutes,
		MinPromptsForSession:          cfg.MinPromptsForSession,
		MinPromptsForProgressAnalysis: cfg.MinPromptsForProgressAnalysis,
		ProgressAnalysisInterval:      cfg.ProgressAnalysisInterval,
		ProgressAnalysisDebounceMs:    cfg.ProgressAnalysisDebounceMs,
	}
	svc.Store = store.New(db, snapCfg)
	if err := svc.Store.Load(); err != nil {
		log.Printf("daemon: loading state: %v", err)
	}

	var analyzer goal.ProgressAnalyzer
	if lm != nil {
		analyzer = goal.NewLLMProgressAnalyzer(lm)
	}

	svc.Detector = project.NewDetector(svc.Store, project.OSHost{})
	svc.Manager = session.NewManager(svc.Store, svc.Bus, svc.Detector)
	svc.Goals = goal.NewService(svc.Store, svc.Manager, lm, analyzer)
	svc.Stats = stats.NewService(svc.Store, svc.Manager)
	svc.Summaries = summary.NewService(svc.Store, lm)
	svc.Adapter = source.NewAdapter(svc.Manager, db, cfg.SessionDirs)

	// Every appended prompt feeds the score history and the
	// goal-progress debouncer.
	svc.Bus.Subscribe(func(ev events.Event) {
		if ev.Kind != events.PromptAdded {
			return
		}
		if score, ok := ev.Data.(float64); ok && score > 0 {
			svc.Stats.RecordScore(score)
		}
		svc.Goals.OnPromptAdded(ev.SessionID)
	})

	return svc
}

// Daemon manages the background process lifecycle.
type Daemon struct {
	cfg       *config.Config
	lm        llm.Capability
	svc       *Services
	server    *ipc.Server
	startTime time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a daemon. lm may be nil; AI-backed features then fall back
// to their deterministic paths.
func New(cfg *config.Config, lm llm.Capability) *Daemon {
	return &Daemon{cfg: cfg, lm: lm}
}

// Start builds the service graph, starts the IPC server and transcript
// adapter, and blocks until a shutdown signal or stop command arrives.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	d.svc = BuildServices(d.cfg, d.lm)

	ctx, cancel := signalContext(context.Background())
	d.ctx = ctx
	d.cancel = cancel
	d.startTime = time.Now()

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.server = ipc.NewServer()
	d.registerHandlers()

	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- d.server.Listen(ctx, d.cfg.SocketPath)
	}()

	go d.svc.Adapter.Run(ctx)
	go d.svc.Goals.AnalyzeTopSessionsOnLoad(ctx)

	log.Printf("daemon started (pid %d, db %s, socket %s)", os.Getpid(), d.cfg.DBPath, d.cfg.SocketPath)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			log.Printf("ipc server error: %v", err)
		}
	}
	return d.shutdown()
}

// Stop triggers a graceful shutdown from outside.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown tears down in dependency order: producers first, then the
// server, then a final state write, then the database.
func (d *Daemon) shutdown() error {
	log.Println("shutting down...")

	if d.cancel != nil {
		d.cancel()
	}
	d.svc.Goals.Shutdown()

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			log.Printf("ipc stop: %v", err)
		}
	}

	d.svc.Store.RLockGraph()
	err := d.svc.Store.SaveState()
	d.svc.Store.RUnlockGraph()
	if err != nil {
		log.Printf("final state write: %v", err)
	}
	if d.svc.DB != nil {
		if err := d.svc.DB.Close(); err != nil {
			log.Printf("db close: %v", err)
		}
	}
	_ = os.Remove(d.cfg.SocketPath)

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	log.Println("daemon stopped")
	return nil
}

// Running reports whether the daemon loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Services exposes the wired service graph.
func (d *Daemon) Services() *Services {
	return d.svc
}

// registerHandlers binds the IPC command set to the services.
func (d *Daemon) registerHandlers() {
	d.server.Register(ipc.CmdStop, func(ctx context.Context, args map[string]string) (any, error) {
		go d.Stop() // reply first, then tear down
		return "shutting down", nil
	})

	d.server.Register(ipc.CmdStatus, func(ctx context.Context, args map[string]string) (any, error) {
		return d.statusData(), nil
	})

	d.server.Register(ipc.CmdSessions, func(ctx context.Context, args map[string]string) (any, error) {
		filter := store.SessionFilter{
			ProjectID:  args[ipc.ArgProjectID],
			ActiveOnly: args[ipc.ArgActiveOnly] == "true",
		}
		d.svc.Store.RLockGraph()
		defer d.svc.Store.RUnlockGraph()
		return sessionViews(d.svc.Store.Sessions(filter), d.svc.Store.ActiveSessionID()), nil
	})

	d.server.Register(ipc.CmdStats, func(ctx context.Context, args map[string]string) (any, error) {
		return d.svc.Stats.GetDailyStats(), nil
	})

	d.server.Register(ipc.CmdGoalStatus, func(ctx context.Context, args map[string]string) (any, error) {
		return d.svc.Goals.GoalStatus(args[ipc.ArgSessionID])
	})

	d.server.Register(ipc.CmdSummary, func(ctx context.Context, args map[string]string) (any, error) {
		instructions := args[ipc.ArgInstructions]
		switch summary.Timeframe(args[ipc.ArgTimeframe]) {
		case summary.Weekly:
			return d.svc.Summaries.GenerateWeekly(ctx, instructions)
		case summary.Monthly:
			return d.svc.Summaries.GenerateMonthly(ctx, instructions)
		default:
			return d.svc.Summaries.GenerateDaily(ctx, instructions)
		}
	})
}

func (d *Daemon) statusData() ipc.StatusData {
	data := ipc.StatusData{
		Uptime:          d.Uptime().Truncate(time.Second).String(),
		ActiveSessionID: d.svc.Store.ActiveSessionID(),
	}
	d.svc.Store.RLockGraph()
	for _, proj := range d.svc.Store.AllProjects() {
		data.ProjectCount++
		data.SessionCount += len(proj.Sessions)
		data.PromptCount += proj.TotalPrompts
	}
	d.svc.Store.RUnlockGraph()
	if d.svc.DB != nil {
		if v, err := d.svc.DB.DBSizeBytes(); err == nil {
			data.DBSizeBytes = v
		}
	}
	if d.lm != nil {
		if info := d.lm.ActiveProviderInfo(); info != nil {
			data.Provider = info.Type + "/" + info.Model
		}
	}
	return data
}

// SessionView is the trimmed session shape returned over IPC.
type SessionView struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"projectId"`
	Platform     string  `json:"platform"`
	Name         string  `json:"name,omitempty"`
	Goal         string  `json:"goal,omitempty"`
	GoalProgress int     `json:"goalProgress,omitempty"`
	PromptCount  int     `json:"promptCount"`
	IsActive     bool    `json:"isActive"`
	IsCurrent    bool    `json:"isCurrent"`
	StartTime    string  `json:"startTime"`
	LastActivity string  `json:"lastActivity"`
	AverageScore float64 `json:"averageScore,omitempty"`
}

func sessionViews(sessions []*model.Session, activeID string) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		v := SessionView{
			ID:           s.ID,
			ProjectID:    s.ProjectID,
			Platform:     string(s.Platform),
			Name:         s.CustomName,
			Goal:         s.Goal,
			GoalProgress: s.GoalProgress,
			PromptCount:  s.PromptCount,
			IsActive:     s.IsActive,
			IsCurrent:    s.ID == activeID,
			StartTime:    s.StartTime.Format(time.RFC3339),
			LastActivity: s.LastActivity.Format(time.RFC3339),
		}
		if s.AverageScore != nil {
			v.AverageScore = *s.AverageScore
		}
		out = append(out, v)
	}
	return out
}
