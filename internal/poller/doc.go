// Package poller runs a function on a fixed interval with an explicit
// start/stop lifecycle.
//
// Each periodic readout in the service (the session buffer monitor and the
// debug overlay's memory sampler) owns its own [Poller] and stops it when its
// owner is torn down; nothing in the service relies on package-level timers.
package poller
