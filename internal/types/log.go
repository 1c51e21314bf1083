package types

// LogLevel controls the verbosity of the zap-backed logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunMode describes the deployment mode the process was started in.
type RunMode string

const (
	ModeLocal RunMode = "local"
	ModeProd  RunMode = "production"
)
