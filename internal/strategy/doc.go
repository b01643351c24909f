// Package strategy defines the named preload strategies and the fixed
// tables that map each one to a buffer configuration and a simulated
// preload schedule.
//
// [Select] maps a network speed sample to a strategy using two fixed
// thresholds: above 5 Mbps is aggressive, below 1 Mbps is conservative and
// everything in between (including both boundaries) is moderate. The
// selection has no memory between calls.
package strategy
