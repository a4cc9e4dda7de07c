package translator

// Logger receives diagnostic messages from a Translator. It is called
// synchronously from whichever goroutine drives the translator, and
// must not block. A nil Logger is replaced with a no-op at
// construction time.
//
// This replaces a module-scoped debug flag and debugPrintf helper: a
// global, env-var-gated logger makes every Translator in a process
// noisy (or quiet) together, and can't be redirected per instance.
// The translator avoids reaching for any process-wide state.
type Logger func(format string, args ...interface{})

func noopLogger(string, ...interface{}) {}

func (c *Config) logger() Logger {
	if c.Logger == nil {
		return noopLogger
	}

	return c.Logger
}
