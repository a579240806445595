package app

import "github.com/xyproto/env/v2"

// Environment variables that seed the defaults of the command line.
const (
	EnvLogLevel        = "CYCLEBITE_LOG_LEVEL"
	EnvLogFormat       = "CYCLEBITE_LOG_FORMAT"
	EnvWorkers         = "CYCLEBITE_WORKERS"
	EnvHealthcheckPort = "CYCLEBITE_HEALTHCHECK_PORT"
)

// ConfigFromEnv returns the ambient settings taken from the environment,
// falling back to the built-in defaults. It rereads the environment on every
// call.
func ConfigFromEnv() Config {
	env.Load()
	return Config{
		LogLevel:        env.Str(EnvLogLevel, "info"),
		LogFormat:       env.Str(EnvLogFormat, "text"),
		Workers:         env.Int(EnvWorkers, 0),
		HealthcheckPort: env.Int(EnvHealthcheckPort, 0),
	}
}
