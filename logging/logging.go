package logging

import "go.uber.org/zap"

// Loggers.
var (
	// AppLogger is the main app.App logger.
	AppLogger = zap.NewNop()
	// DBLogger is used for stuff regarding the database connection.
	DBLogger = zap.NewNop()
	// WebServerLogger is used for all stuff regarding web servers.
	WebServerLogger = zap.NewNop()
	// WSLogger is used for all stuff regarding websocket connections.
	WSLogger = zap.NewNop()
	// MQTTLogger is the logger for all MQTT stuff.
	MQTTLogger = zap.NewNop()
)

// ApplyToGlobalLoggers sets the global loggers to named children of the given
// one.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	DBLogger = logger.Named("db")
	WebServerLogger = logger.Named("web-server")
	WSLogger = logger.Named("ws")
	MQTTLogger = logger.Named("mqtt")
}
