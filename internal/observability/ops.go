package observability

// GetSettings and UpdateSettings adapt Manager to internal/ipc's
// ObservabilitySettings interface, which is declared in terms of `any`
// and map[string]any so internal/ipc never imports this package.

// GetSettings satisfies internal/ipc.ObservabilitySettings.
func (m *Manager) GetSettings() any { return m.Get() }

// UpdateSettings satisfies internal/ipc.ObservabilitySettings: args is
// an observability_update request's raw op args, flattened rather than
// nested to keep the wire shape simple.
//
//	{"tracing_enabled": true, "otlp_endpoint": "...", "per_actor_bytes": N, "max_bytes_cap": N}
func (m *Manager) UpdateSettings(args map[string]any) (any, error) {
	patch, err := argsToPatch(args)
	if err != nil {
		return nil, err
	}
	return m.Update(patch)
}

func argsToPatch(args map[string]any) (Patch, error) {
	var p Patch
	if v, ok := args["tracing_enabled"].(bool); ok {
		p.TracingEnabled = &v
	}
	if v, ok := args["otlp_endpoint"].(string); ok {
		p.OTLPEndpoint = &v
	}
	if v, ok := args["per_actor_bytes"].(float64); ok {
		n := int64(v)
		p.PerActorBytes = &n
	}
	if v, ok := args["max_bytes_cap"].(float64); ok {
		n := int64(v)
		p.MaxBytesCap = &n
	}
	return p, nil
}
