// Package player manages playback sessions for an embedded adaptive player.
//
// The player itself (segment fetching, bitrate selection, buffer management)
// runs in the client. A Session hands it a source descriptor and a tuned
// EngineOptions object, then consumes the media events it reports:
//
//   - loadedmetadata ends loading and records the load time
//   - progress updates the loading percentage from the first buffered range
//   - error with code 4 schedules one reload after the configured delay
//   - canplay and ratechange are logged
//
// A buffer monitor samples the player every second to derive buffer health
// and the number of segments buffered ahead of the playhead.
//
// Commands for the client (source assignments and reloads) are queued on a
// RemotePlayer and drained over HTTP.
package player
