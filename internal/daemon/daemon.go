// Package daemon wires every daemon component into one running process
// (spec §2, §4, §9). It holds no package-level state: every dependency
// is an explicit field on Daemon, constructed once in New and torn down
// once in stopComponents when Run returns.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cccc-dev/cccc/internal/automation"
	"github.com/cccc-dev/cccc/internal/broadcast"
	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/delivery"
	"github.com/cccc-dev/cccc/internal/group"
	"github.com/cccc-dev/cccc/internal/groupcontext"
	"github.com/cccc-dev/cccc/internal/imbridge"
	"github.com/cccc-dev/cccc/internal/inbox"
	"github.com/cccc-dev/cccc/internal/ipc"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/mcpfacade"
	"github.com/cccc-dev/cccc/internal/observability"
	"github.com/cccc-dev/cccc/internal/registry"
	"github.com/cccc-dev/cccc/internal/remoteaccess"
	"github.com/cccc-dev/cccc/internal/runner/headless"
	"github.com/cccc-dev/cccc/internal/runner/pty"
	"github.com/cccc-dev/cccc/internal/secrets"
	"github.com/cccc-dev/cccc/internal/snapshot"
	"github.com/cccc-dev/cccc/internal/storage"
)

// Version is stamped into ping responses and the addr descriptor.
// cmd/ccccd overrides it at build time via -ldflags.
var Version = "dev"

// Daemon owns every long-lived component and the goroutines driving
// them (spec §2's dependency order: storage -> registry/group/ledger ->
// inbox/secrets -> runners -> delivery/automation -> broadcast/snapshot
// -> observability -> ipc/mcpfacade).
type Daemon struct {
	cfg   *config.Config
	paths storage.Paths
	log   *logging.Logger

	reg      *registry.Registry
	groups   *group.Store
	ledger   *ledger.Store
	inbox    *inbox.Store
	secrets  *secrets.Store
	pty      *pty.Supervisor
	headless *headless.Registry
	delivery *delivery.Pipeline
	auto     *automation.Manager
	bcast    broadcast.Broadcaster
	snap     *snapshot.Store
	obs      *observability.Manager
	remote   *remoteaccess.Store
	ctxStore *groupcontext.Store
	im       *imbridge.Store

	actorRuntime ipc.ActorRuntime

	dispatcher *ipc.Dispatcher
	ipcServer  *ipc.Server
	facade     *mcpfacade.Facade
}

// New constructs every component but starts nothing. Callers must call
// Run to begin serving.
func New(cfg *config.Config, log *logging.Logger) (*Daemon, error) {
	paths := storage.New(cfg.Home)

	reg := registry.New(paths)
	groups := group.NewStore(paths)
	ledgerStore := ledger.NewStore(paths, log)
	inboxStore := inbox.NewStore(paths, ledgerStore)
	secretsStore := secrets.NewStore(paths)
	ptySup := pty.NewSupervisor(log)
	headlessReg := headless.NewRegistry()

	deliveryPipeline := delivery.NewPipeline(paths, groups, ledgerStore, inboxStore, ptySup, headlessReg, log)
	autoMgr := automation.NewManager(paths, reg, groups, ledgerStore, inboxStore, ptySup, headlessReg, secretsStore, log)

	bcast, err := broadcast.New(cfg.Broadcast, log)
	if err != nil {
		return nil, fmt.Errorf("build broadcaster: %w", err)
	}
	ledgerStore.SetAppendHook(bcast.Publish)

	db, err := snapshot.OpenSQLite(paths.SnapshotDBFile())
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	snapStore, err := snapshot.New(db)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	obsMgr, err := observability.NewManager(paths, cfg.Terminal, log)
	if err != nil {
		return nil, fmt.Errorf("init observability manager: %w", err)
	}

	remoteStore := remoteaccess.NewStore(paths)
	ctxStore := groupcontext.NewStore(paths, groups)
	imStore := imbridge.NewStore(paths, groups)

	ptySup.SetExitCallback(func(sess *pty.Session, exitErr error) {
		// Only clear the runtime state file if it still names the pid
		// that just exited (spec §4.F: "only if the pid matches") — a
		// fresh restart may already have overwritten it with a new pid
		// by the time this fires.
		if err := storage.ClearRunnerStateIfPIDMatches(paths, sess.GroupID, "pty", sess.ActorID, sess.Pid()); err != nil && log != nil {
			log.Warn("daemon: failed to clear runner state file", zap.String("group_id", sess.GroupID), zap.String("actor_id", sess.ActorID), zap.Error(err))
		}
		if _, err := ledgerStore.Append(sess.GroupID, ledger.Event{
			Kind: ledger.KindActorStop,
			By:   "daemon",
			Data: map[string]any{"actor_id": sess.ActorID, "reason": "exited"},
		}); err != nil && log != nil {
			log.Warn("daemon: failed to record actor exit", zap.String("group_id", sess.GroupID), zap.String("actor_id", sess.ActorID), zap.Error(err))
		}
	})

	actorRuntime := ipc.ActorRuntime{
		Paths: paths, Groups: groups, Ledger: ledgerStore, Secrets: secretsStore,
		PTY: ptySup, Headless: headlessReg, Delivery: deliveryPipeline,
	}

	d := &Daemon{
		cfg: cfg, paths: paths, log: log,
		reg: reg, groups: groups, ledger: ledgerStore, inbox: inboxStore,
		secrets: secretsStore, pty: ptySup, headless: headlessReg,
		delivery: deliveryPipeline, auto: autoMgr, bcast: bcast,
		snap: snapStore, obs: obsMgr, remote: remoteStore, ctxStore: ctxStore,
		im: imStore, actorRuntime: actorRuntime,
	}

	d.dispatcher = d.buildDispatcher()
	d.ipcServer = nil // set by Run once the listener is open

	return d, nil
}

// buildDispatcher registers every op group (spec §6.1).
func (d *Daemon) buildDispatcher() *ipc.Dispatcher {
	disp := ipc.NewDispatcher()

	ipc.RegisterCoreOps(disp, ipc.DaemonInfo{
		Version:      Version,
		PID:          os.Getpid(),
		Capabilities: []string{"chat", "inbox", "notify", "automation", "events_stream", "mcp_facade"},
	})
	ipc.RegisterRegistryOps(disp, d.paths, d.reg, d.groups, d.ledger)
	ipc.RegisterGroupOps(disp, d.paths, d.reg, d.groups, d.ledger, d.auto)
	ipc.RegisterActorOps(disp, d.actorRuntime)
	ipc.RegisterChatOps(disp, ipc.ChatRuntime{Groups: d.groups, Ledger: d.ledger, Inbox: d.inbox})
	ipc.RegisterAutomationOps(disp, d.groups, d.auto)
	ipc.RegisterTerminalOps(disp, d.groups, d.pty)
	ipc.RegisterLedgerOps(disp, d.groups, d.ledger, d.inbox, d.snap)
	ipc.RegisterObservabilityOps(disp, d.obs)
	ipc.RegisterRemoteAccessOps(disp, d.remote)
	ipc.RegisterDebugOps(disp, d.reg, d.groups, d.ledger,
		func() string { return d.cfg.Logging.OutputPath },
		func() bool { return d.cfg.Daemon.DevMode },
	)
	ipc.RegisterContextOps(disp, d.ctxStore)
	ipc.RegisterHeadlessOps(disp, d.headless)
	ipc.RegisterIMOps(disp, d.groups, d.im)

	disp.RegisterHijack("term_attach", ipc.TermAttach(d.pty), nil)
	disp.RegisterHijack("events_stream", ipc.EventsStream(d.groups, d.ledger, d.bcast), nil)

	disp.Trace = d.obs.TraceHandler

	return disp
}

// Run serves IPC on ln, starts the MCP façade (if enabled) and the
// automation/delivery tick loops, and blocks until ctx is done or any
// component returns an error. Shutdown of every started component is
// always attempted, regardless of which goroutine failed first.
func (d *Daemon) Run(ctx context.Context, ln net.Listener) error {
	// Reconcile actors left running=true from a prior crash before
	// serving any request (spec §3 Lifecycle: "Running actors are
	// reconciled at daemon start").
	started, err := ipc.ReconcileRunningActors(d.actorRuntime, d.reg, d.log)
	if err != nil && d.log != nil {
		d.log.Warn("reconcile running actors: list registry", zap.Error(err))
	} else if started > 0 && d.log != nil {
		d.log.Info("reconciled running actors", zap.Int("restarted", started))
	}

	d.ipcServer = ipc.NewServer(ln, d.dispatcher, d.log)

	// ctx is ours alone to cancel: a clean "shutdown" op makes Serve
	// return nil rather than an error, and errgroup only cancels gctx on
	// a non-nil return, so the IPC goroutine cancels it explicitly on
	// every exit path to unblock the tick loops below.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		if err := d.ipcServer.Serve(); err != nil {
			return fmt.Errorf("ipc server: %w", err)
		}
		return nil
	})

	if d.cfg.MCPFacade.Enabled {
		d.facade = mcpfacade.New(d.dispatcher, mcpfacade.Config{Port: d.cfg.MCPFacade.Port}, d.log)
		if err := d.facade.Start(gctx); err != nil {
			return fmt.Errorf("start mcp facade: %w", err)
		}
		if d.log != nil {
			d.log.Info("mcp facade listening", zap.Int("port", d.facade.Port()))
		}
	}

	// automation.Manager.Tick self-iterates every registered group each
	// call; delivery.Pipeline.TickDelivery is per-group, so the daemon
	// drives it with its own loop over the registry (neither backing
	// package knows about the other's cadence).
	g.Go(func() error { return d.runAutomationLoop(gctx) })
	g.Go(func() error { return d.runDeliveryLoop(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		d.stopComponents()
		return nil
	})

	return g.Wait()
}

func (d *Daemon) runAutomationLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Automation.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.auto.Tick()
		}
	}
}

func (d *Daemon) runDeliveryLoop(ctx context.Context) error {
	interval := time.Duration(d.cfg.Delivery.TickIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			entries, err := d.reg.List()
			if err != nil {
				if d.log != nil {
					d.log.Warn("delivery tick: list registry", zap.Error(err))
				}
				continue
			}
			for _, e := range entries {
				if err := d.delivery.TickDelivery(e.GroupID); err != nil && d.log != nil {
					d.log.Warn("delivery tick failed", zap.String("group_id", e.GroupID), zap.Error(err))
				}
			}
		}
	}
}

// stopComponents shuts down everything Run started, in reverse
// dependency order. Safe to call even if some components never
// started (Stop fields default to zero values that no-op).
func (d *Daemon) stopComponents() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if d.facade != nil {
		if err := d.facade.Stop(shutdownCtx); err != nil && d.log != nil {
			d.log.Warn("mcp facade shutdown error", zap.Error(err))
		}
	}
	if d.ipcServer != nil {
		d.ipcServer.Shutdown()
	}
	if err := d.obs.Shutdown(shutdownCtx); err != nil && d.log != nil {
		d.log.Warn("observability shutdown error", zap.Error(err))
	}
	if d.snap != nil {
		if err := d.snap.Close(); err != nil && d.log != nil {
			d.log.Warn("snapshot store close error", zap.Error(err))
		}
	}
	d.bcast.Close()
}

// Dispatcher exposes the built dispatcher, e.g. for tests driving ops
// directly without going over the IPC transport.
func (d *Daemon) Dispatcher() *ipc.Dispatcher { return d.dispatcher }
