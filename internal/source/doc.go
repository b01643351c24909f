// Package source describes playback sources.
//
// A source URL is classified as HLS or progressive MP4 by its suffix, which
// determines the MIME type handed to the player and whether the smart preload
// runs at all. For HLS sources, Inspect fetches and decodes the playlist so
// callers can see the variant ladder, segment count and whether the stream is
// live.
package source
