// Package log provides structured protocol logging for the realtime client.
//
// This package defines the Logger interface and Event types for capturing
// every protocol message, discarded frame, state change and error seen by a
// client. It is separate from operational logging (slog): the protocol
// capture is a complete machine-readable trace of one connection.
//
// # Basic Usage
//
//	// Console trace through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary trace for later analysis with appsync-log
//	cfg.ProtocolLogger, _ = log.NewFileLogger("session.alog")
//
//	// JSON lines on stdout, skipping data messages
//	cfg.ProtocolLogger = log.NewFilteredLogger(
//	    log.NewJSONLogger(os.Stdout),
//	    log.Filter{ExcludeMessageTypes: []wire.MessageType{wire.TypeData}},
//	)
//
// # File Format
//
// Event files are a stream of CBOR maps with integer keys (.alog). The
// appsync-log tool views, filters and exports them.
package log
