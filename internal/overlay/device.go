package overlay

import (
	"regexp"
	"strings"
)

var (
	mobileUA = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini`)
	tabletUA = regexp.MustCompile(`(?i)ipad|tablet`)
)

// Screen is the client display reported with an overlay request.
type Screen struct {
	Width            int
	Height           int
	DevicePixelRatio float64
}

// DeviceInfo is the device section of the overlay.
type DeviceInfo struct {
	IsMobile         bool    `json:"isMobile"`
	IsTablet         bool    `json:"isTablet"`
	Type             string  `json:"type"`
	ScreenWidth      int     `json:"screenWidth"`
	ScreenHeight     int     `json:"screenHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
	Platform         string  `json:"platform"`
}

// DetectDevice classifies a client from its user agent and screen.
func DetectDevice(userAgent string, screen Screen) DeviceInfo {
	dpr := screen.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	info := DeviceInfo{
		IsMobile:         mobileUA.MatchString(userAgent),
		IsTablet:         isTablet(userAgent),
		ScreenWidth:      screen.Width,
		ScreenHeight:     screen.Height,
		DevicePixelRatio: dpr,
		Platform:         platformFromUA(userAgent),
	}
	switch {
	case info.IsMobile:
		info.Type = "mobile"
	case info.IsTablet:
		info.Type = "tablet"
	default:
		info.Type = "desktop"
	}
	return info
}

// isTablet matches ipad, tablet, or an android UA with no "mobile" anywhere
// after the android token.
func isTablet(ua string) bool {
	if tabletUA.MatchString(ua) {
		return true
	}
	lower := strings.ToLower(ua)
	i := strings.LastIndex(lower, "android")
	return i >= 0 && !strings.Contains(lower[i+len("android"):], "mobile")
}

// platformFromUA approximates navigator.platform.
func platformFromUA(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "iphone"):
		return "iPhone"
	case strings.Contains(lower, "ipad"):
		return "iPad"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "windows"):
		return "Win32"
	case strings.Contains(lower, "macintosh"), strings.Contains(lower, "mac os x"):
		return "MacIntel"
	case strings.Contains(lower, "cros"):
		return "CrOS"
	case strings.Contains(lower, "linux"):
		return "Linux x86_64"
	}
	return "unknown"
}
