// Package logging provides structured JSON logging for rowbulk with an
// optional size-rotated log file under ~/.rowbulk/logs/.
//
// Without --debug, logs go to stderr at the configured level. With --debug,
// everything down to debug level is also written to the log file, which
// `rowbulk logs` can tail and filter. While the full-screen progress display
// is active, logs go to the file only so they cannot corrupt the screen.
package logging
