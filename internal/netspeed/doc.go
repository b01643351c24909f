// Package netspeed estimates the client's network speed in Mbps.
//
// Two paths are tried in order. When a [ConnectionProvider] reports a
// reading (a speed the client measured and reported, browser client hints
// forwarded on the request, or a static default), its downlink is used
// directly. Otherwise a [Prober] times a
// fetch of a tiny resource and derives a speed proxy from the round trip.
//
// A Prober run by the server measures the path from the server to the probe
// URL, not the viewer's network. With the default PROBE_URL that is a
// loopback fetch, so clients should report their own reading when they
// send no client hints.
//
// Estimation never fails: an unavailable capability or a failed probe
// yields a speed of 0.
package netspeed
