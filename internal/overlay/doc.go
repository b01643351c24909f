// Package overlay builds the debug overlay shown beside the player.
//
// The overlay has three sections. Network comes from the connection
// providers in package netspeed. Device is classified from the user agent
// and the screen the client reports. Performance combines a frame rate,
// computed from frame counts the client posts, with heap readings sampled by
// a memory poller.
//
// Each client keeps its own frame-rate window, keyed by a client ID it picks
// and sends with every report. Windows of clients that stop reporting are
// removed by Overlay.Sweep.
package overlay
