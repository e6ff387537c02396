package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaChromeMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (Version/17.1 Mobile/15E148 Safari/604.1)"
)

func TestDeviceSimilarity_IdenticalStrings(t *testing.T) {
	assert.Equal(t, 1.0, DeviceSimilarity(uaChromeWindows, uaChromeWindows))
}

func TestDeviceSimilarity_SameBrowserSameOS(t *testing.T) {
	// Whitespace difference defeats the equality short circuit but the
	// fingerprint still matches on all components.
	current := uaChromeWindows + " "
	assert.Equal(t, 1.0, DeviceSimilarity(uaChromeWindows, current))
}

func TestDeviceSimilarity_BrowserUpdateSameOS(t *testing.T) {
	updated := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	score := DeviceSimilarity(uaChromeWindows, updated)
	assert.Equal(t, 0.4, score)
	assert.Less(t, score, deviceMatchThreshold)
}

func TestDeviceSimilarity_SameBrowserDifferentOS(t *testing.T) {
	score := DeviceSimilarity(uaChromeWindows, uaChromeMac)
	assert.Equal(t, 0.6, score)
	assert.Less(t, score, deviceMatchThreshold)
}

func TestDeviceSimilarity_EverythingDifferent(t *testing.T) {
	assert.Equal(t, 0.0, DeviceSimilarity(uaChromeWindows, uaFirefoxLinux))
}

func TestDeviceSimilarity_EdgeIsNotChrome(t *testing.T) {
	// Edge carries a Chrome/ token but the edg/ marker must win.
	score := DeviceSimilarity(uaChromeWindows, uaEdgeWindows)
	assert.Equal(t, 0.4, score)
}

func TestFingerprintUserAgent(t *testing.T) {
	fp := fingerprintUserAgent(uaChromeWindows)
	assert.Equal(t, "chrome", fp.BrowserFamily)
	assert.Equal(t, "120", fp.BrowserMajor)
	assert.Equal(t, "windows", fp.OSFamily)

	fp = fingerprintUserAgent(uaEdgeWindows)
	assert.Equal(t, "edge", fp.BrowserFamily)
	assert.Equal(t, "120", fp.BrowserMajor)

	fp = fingerprintUserAgent(uaSafariIPhone)
	assert.Equal(t, "safari", fp.BrowserFamily)
	assert.Equal(t, "17", fp.BrowserMajor)
	assert.Equal(t, "ios", fp.OSFamily)

	fp = fingerprintUserAgent("curl/8.4.0")
	assert.Equal(t, "", fp.BrowserFamily)
	assert.Equal(t, "", fp.OSFamily)
}
