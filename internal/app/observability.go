package app

// ObservabilityOptions overrides the observability listener defaults. Nil
// fields fall back to TOOLGATE_METRICS_ENABLED / TOOLGATE_HEALTHZ_ENABLED,
// then to enabled.
type ObservabilityOptions struct {
	MetricsEnabled *bool
	HealthzEnabled *bool
}

func resolveObservabilityDefaults(opts *ObservabilityOptions) (bool, bool) {
	metricsEnabled, healthzEnabled := true, true
	if value, ok := envBoolOptional("TOOLGATE_METRICS_ENABLED"); ok {
		metricsEnabled = value
	}
	if value, ok := envBoolOptional("TOOLGATE_HEALTHZ_ENABLED"); ok {
		healthzEnabled = value
	}
	if opts != nil {
		if opts.MetricsEnabled != nil {
			metricsEnabled = *opts.MetricsEnabled
		}
		if opts.HealthzEnabled != nil {
			healthzEnabled = *opts.HealthzEnabled
		}
	}
	return metricsEnabled, healthzEnabled
}
