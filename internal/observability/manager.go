package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/logging"
	"github.com/cccc-dev/cccc/internal/storage"
)

const serviceName = "cccc-daemon"

// Manager owns the persisted observability settings and the live OTel
// tracer provider they control. It is held as an explicit field on
// internal/daemon's Daemon struct (spec §9: "no module-level globals
// for anything resembling shared state") rather than package-level
// vars the way the teacher's agentctl/tracing package does it.
type Manager struct {
	paths storage.Paths
	log   *logging.Logger

	mu       sync.RWMutex
	settings Settings
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider // non-nil only while tracing is enabled
}

// NewManager loads (or seeds) settings.json and starts the tracer
// if it comes up enabled.
func NewManager(paths storage.Paths, termCfg config.TerminalConfig, log *logging.Logger) (*Manager, error) {
	s, err := loadSettings(paths, termCfg)
	if err != nil {
		return nil, err
	}
	m := &Manager{paths: paths, log: log, settings: s, provider: noop.NewTracerProvider()}
	if s.TracingEnabled {
		if err := m.startLocked(s.OTLPEndpoint); err != nil && m.log != nil {
			m.log.Warn("observability: tracing did not start, continuing with a no-op tracer", zap.Error(err))
		}
	}
	return m, nil
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Update applies patch, persists the result, and starts or stops the
// tracer if TracingEnabled or OTLPEndpoint changed.
func (m *Manager) Update(patch Patch) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.settings.applyPatch(patch)
	wasEnabled := m.settings.TracingEnabled
	endpointChanged := m.settings.OTLPEndpoint != next.OTLPEndpoint

	// Start (or restart) the tracer before committing anything, so a
	// bad endpoint never leaves settings claiming tracing is on while
	// the provider is actually still the no-op one.
	switch {
	case next.TracingEnabled && (!wasEnabled || endpointChanged):
		m.stopLocked()
		if err := m.startLocked(next.OTLPEndpoint); err != nil {
			return Settings{}, fmt.Errorf("start tracer: %w", err)
		}
	case !next.TracingEnabled && wasEnabled:
		m.stopLocked()
	}

	if err := saveSettings(m.paths, next); err != nil {
		return Settings{}, err
	}
	m.settings = next
	return next, nil
}

// Tracer returns the daemon's tracer, a no-op if tracing is disabled.
func (m *Manager) Tracer() trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.provider.Tracer(serviceName)
}

func (m *Manager) startLocked(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("tracing enabled but no otlp_endpoint configured")
	}
	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(stripScheme(endpoint)),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	m.sdk = provider
	m.provider = provider
	return nil
}

func (m *Manager) stopLocked() {
	if m.sdk == nil {
		return
	}
	_ = m.sdk.Shutdown(context.Background())
	m.sdk = nil
	m.provider = noop.NewTracerProvider()
}

// Shutdown flushes and stops the tracer provider, if running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sdk == nil {
		return nil
	}
	err := m.sdk.Shutdown(ctx)
	m.sdk = nil
	m.provider = noop.NewTracerProvider()
	return err
}

func stripScheme(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}
