package netspeed

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// ConnectionInfo mirrors what a browser's connection-information API
// reports. Zero values mean the reading was unavailable.
type ConnectionInfo struct {
	Online        bool    `json:"online"`
	Type          string  `json:"connectionType"`
	EffectiveType string  `json:"effectiveType"`
	DownlinkMbps  float64 `json:"downlink"`
	RTTMillis     int     `json:"rtt"`
	SaveData      bool    `json:"saveData"`
}

// Unknown returns the readout used when no capability is available.
func Unknown() ConnectionInfo {
	return ConnectionInfo{
		Online:        false,
		Type:          "unknown",
		EffectiveType: "unknown",
	}
}

// ConnectionProvider is one source of connection information. Connection
// returns ok=false when the capability is not available.
type ConnectionProvider interface {
	Connection(ctx context.Context) (ConnectionInfo, bool)
}

// Chain tries each provider in order and returns the first available reading.
type Chain []ConnectionProvider

// Connection implements ConnectionProvider.
func (c Chain) Connection(ctx context.Context) (ConnectionInfo, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if info, ok := p.Connection(ctx); ok {
			return info, true
		}
	}
	return Unknown(), false
}

// StaticProvider reports a fixed downlink, e.g. from DEFAULT_DOWNLINK_MBPS.
type StaticProvider struct {
	Info ConnectionInfo
}

// NewStaticProvider returns a provider reporting downlinkMbps while online.
func NewStaticProvider(downlinkMbps float64) StaticProvider {
	info := Unknown()
	info.Online = true
	info.DownlinkMbps = downlinkMbps
	return StaticProvider{Info: info}
}

// Connection implements ConnectionProvider.
func (s StaticProvider) Connection(context.Context) (ConnectionInfo, bool) {
	return s.Info, true
}

// Client hint and companion headers read by HeaderProvider.
const (
	HeaderDownlink       = "Downlink"
	HeaderECT            = "ECT"
	HeaderRTT            = "RTT"
	HeaderSaveData       = "Save-Data"
	HeaderConnectionType = "X-Connection-Type"
	HeaderOnline         = "X-Online"
)

// HeaderProvider derives connection information from the Network
// Information client hints a browser attaches to a request. It is available
// only when the Downlink hint is present.
type HeaderProvider struct {
	Header http.Header
}

// Connection implements ConnectionProvider.
func (h HeaderProvider) Connection(context.Context) (ConnectionInfo, bool) {
	info := Unknown()
	if h.Header == nil {
		return info, false
	}

	raw := strings.TrimSpace(h.Header.Get(HeaderDownlink))
	if raw == "" {
		return info, false
	}
	downlink, err := strconv.ParseFloat(raw, 64)
	if err != nil || downlink < 0 {
		return info, false
	}
	info.DownlinkMbps = downlink

	// A request that carries hints came from a connected client unless it
	// says otherwise.
	info.Online = true
	if v := h.Header.Get(HeaderOnline); v != "" {
		if online, err := strconv.ParseBool(v); err == nil {
			info.Online = online
		}
	}
	if v := strings.TrimSpace(h.Header.Get(HeaderECT)); v != "" {
		info.EffectiveType = v
	}
	if v := strings.TrimSpace(h.Header.Get(HeaderConnectionType)); v != "" {
		info.Type = v
	}
	if v := strings.TrimSpace(h.Header.Get(HeaderRTT)); v != "" {
		if rtt, err := strconv.Atoi(v); err == nil && rtt >= 0 {
			info.RTTMillis = rtt
		}
	}
	info.SaveData = strings.EqualFold(strings.TrimSpace(h.Header.Get(HeaderSaveData)), "on")

	return info, true
}
