// Package telemetry builds the structured loggers used across the
// simulator.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig holds logging configuration
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// Format is the log format (json, console)
	Format string
	// OutputPaths is the list of output paths (stdout, stderr, file paths)
	OutputPaths []string
	// ErrorOutputPaths is the list of error output paths
	ErrorOutputPaths []string
	// EnableCaller adds caller information (file:line)
	EnableCaller bool
	// ServiceName for structured field
	ServiceName string
}

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig(serviceName string) *LogConfig {
	return &LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EnableCaller:     false,
		ServiceName:      serviceName,
	}
}

// ForVerbosity maps the simulator's verbose level (0-3) onto a log config:
// 0 errors only, 1 progress, 2 and above full debug output.
func ForVerbosity(serviceName string, verbose int) *LogConfig {
	cfg := DefaultLogConfig(serviceName)
	switch {
	case verbose <= 0:
		cfg.Level = "error"
	case verbose == 1:
		cfg.Level = "info"
	default:
		cfg.Level = "debug"
	}
	return cfg
}

// NewLogger creates a new structured logger with service context
func NewLogger(cfg *LogConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultLogConfig("agora")
	}

	// Parse log level
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// Configure encoder
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	}

	// Build config
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		DisableCaller:    !cfg.EnableCaller,
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
		InitialFields: map[string]interface{}{
			"service": cfg.ServiceName,
		},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// Common logging helpers for structured fields
var (
	// AgentID creates an agent_id field
	AgentID = func(id int) zap.Field { return zap.Int("agent_id", id) }

	// RunID creates a run_id field
	RunID = func(id string) zap.Field { return zap.String("run_id", id) }

	// Episode creates an episode field
	Episode = func(i int) zap.Field { return zap.Int("episode", i) }

	// Head creates a head field
	Head = func(name string) zap.Field { return zap.String("head", name) }

	// Loss creates a loss field
	Loss = func(loss float64) zap.Field { return zap.Float64("loss", loss) }
)
