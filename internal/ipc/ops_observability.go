package ipc

// ObservabilitySettings is the subset of internal/observability.Manager
// this package depends on, declared locally so internal/ipc never
// imports the OTel SDK or internal/observability directly — the same
// decoupling-by-local-interface convention as Broadcaster and
// Dispatcher.Trace.
type ObservabilitySettings interface {
	GetSettings() any
	UpdateSettings(args map[string]any) (any, error)
}

// RegisterObservabilityOps wires observability_get/update (spec §6.1
// "Daemon core"). mgr is an *internal/observability.Manager.
func RegisterObservabilityOps(d *Dispatcher, mgr ObservabilitySettings) {
	d.Register("observability_get", func(ctx *OpContext) (any, error) {
		return mgr.GetSettings(), nil
	}, RequireUser())

	d.Register("observability_update", func(ctx *OpContext) (any, error) {
		return mgr.UpdateSettings(ctx.Args)
	}, RequireUser())
}
