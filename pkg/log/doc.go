// Package log captures protocol traffic of the simulator.
//
// Protocol capture is separate from operational logging (slog): every text
// frame, decoded message, control frame and session transition can be
// recorded as an Event for later inspection with hc-log.
//
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger, // log.NewFileLogger("capture.hclog")
//	)
//
// Capture files are a stream of CBOR-encoded events with integer keys.
package log
