package shared

import (
	"go.uber.org/zap"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string // e.g. "session_client" or "channel_probe"
	EnclaveMode bool   // true if running alongside an enclave workload
	Development bool   // true for development mode
}

// Logger wraps zap.Logger with additional context
type Logger struct {
	*zap.Logger
	serviceName string
	enclaveMode bool
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if config.EnclaveMode {
		// In enclave mode, use minimal logging (error-only) for security
		// This reduces attack surface and prevents information leakage
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		zapConfig.DisableCaller = true
		zapConfig.DisableStacktrace = true
		zapLogger, err = zapConfig.Build()
	} else if config.Development {
		// Development mode: console logging with debug level
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapLogger, err = zapConfig.Build()
	} else {
		// Standalone production mode: structured JSON logging
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = zapConfig.Build()
	}

	if err != nil {
		return nil, err
	}

	zapLogger = zapLogger.With(
		zap.String("service", config.ServiceName),
		zap.Bool("enclave_mode", config.EnclaveMode),
	)

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
		enclaveMode: config.EnclaveMode,
	}, nil
}

// NewLoggerFromEnv creates a logger using environment variables
func NewLoggerFromEnv(serviceName string) (*Logger, error) {
	config := LoggerConfig{
		ServiceName: serviceName,
		EnclaveMode: GetEnvOrDefault("ENCLAVE_MODE", "false") == "true",
		Development: GetEnvOrDefault("DEVELOPMENT", "false") == "true",
	}
	return NewLogger(config)
}

// WithEndpoint returns a logger scoped to one remote endpoint
func (l *Logger) WithEndpoint(endpoint string) *zap.Logger {
	if endpoint == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("endpoint", endpoint))
}

// WithTraceID returns a logger scoped to one diagnostic trace
func (l *Logger) WithTraceID(traceID string) *zap.Logger {
	if traceID == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("trace_id", traceID))
}

// WithCryptoOp returns a logger scoped to one cryptographic operation
func (l *Logger) WithCryptoOp(operation string) *zap.Logger {
	return l.Logger.With(zap.String("crypto_operation", operation))
}

// Security event logging - for security-relevant events
func (l *Logger) Security(msg string, fields ...zap.Field) {
	// Security events are always logged regardless of mode
	l.Logger.Warn(msg, append(fields, zap.Bool("security_event", true))...)
}

// Conditional debug logging - only logs in non-enclave mode
func (l *Logger) DebugIf(msg string, fields ...zap.Field) {
	if !l.enclaveMode {
		l.Logger.Debug(msg, fields...)
	}
}

// Conditional info logging - respects enclave mode settings
func (l *Logger) InfoIf(msg string, fields ...zap.Field) {
	if !l.enclaveMode {
		l.Logger.Info(msg, fields...)
	}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
