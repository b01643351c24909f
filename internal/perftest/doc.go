// Package perftest measures how long a source takes to become playable.
//
// A Runner fetches a source the way a player does during startup and
// records the offset at which each milestone was reached:
//
//	loadedmetadata  manifest parsed, or progressive response headers received
//	canplay         first segment, or first 64KiB, received
//	canplaythrough  preload-ahead segments, or 1MiB, received
//	error           the run failed; the event carries the message
//
// Media is never decoded. Results are stored through a Store, usually the
// SQLite database.
package perftest
