package dedupe

// Option configures a Tracker.
type Option func(*memoryTracker)

// WithMaxKeys bounds how many keys are remembered. Zero or negative keeps
// every key.
func WithMaxKeys(n int) Option {
	return func(t *memoryTracker) {
		t.maxKeys = n
	}
}
