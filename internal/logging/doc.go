// Package logging provides a simple leveled logging interface for the
// hls-preload service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable (or
// DEBUG=1) and can be overridden with [SetLevel]. [Component] returns a
// logger that tags each line with a subsystem name such as "preload" or
// "session".
package logging
