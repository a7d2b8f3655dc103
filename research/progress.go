package research

// ProgressSink receives advisory, human-readable status strings keyed by step
// id. Delivery is fire-and-forget; no acknowledgement is expected.
type ProgressSink interface {
	Publish(stepID int, status string)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(stepID int, status string)

// Publish implements ProgressSink.
func (f ProgressFunc) Publish(stepID int, status string) {
	f(stepID, status)
}

func (cfg *Config) publish(stepID int, status string) {
	if cfg.progress != nil {
		cfg.progress.Publish(stepID, status)
	}
}
