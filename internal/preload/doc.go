// Package preload implements the smart preload used before playback starts.
//
// A Controller estimates the network speed, maps it to a strategy and starts
// a Simulator run. The simulator advances a synthetic 0-100 progress value on
// a fixed schedule per strategy:
//
//	aggressive    3000ms in 30 steps
//	moderate      5000ms in 20 steps
//	conservative  8000ms in 10 steps
//
// Progress is cosmetic. It does not track bytes fetched by the player, which
// manages its own buffer using the configuration the strategy selects.
//
// Only one run is active per simulator. Starting a new run cancels the
// previous one first, and a tick from a cancelled run never touches state.
package preload
