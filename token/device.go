package token

import "strings"

// deviceMatchThreshold is the minimum similarity score a presented
// user agent must reach against the baseline captured at issuance.
const deviceMatchThreshold = 0.8

type deviceFingerprint struct {
	BrowserFamily string
	BrowserMajor  string
	OSFamily      string
}

// DeviceSimilarity scores how likely two user agent strings describe
// the same device. Identical strings score 1.0. Otherwise a matching
// browser family plus major version contributes 0.6 and a matching OS
// family contributes 0.4, so a browser auto-update on the same OS
// still fails the threshold while a full match passes.
func DeviceSimilarity(baseline, current string) float64 {
	if baseline == current {
		return 1.0
	}

	b := fingerprintUserAgent(baseline)
	c := fingerprintUserAgent(current)

	score := 0.0
	if b.BrowserFamily != "" && b.BrowserFamily == c.BrowserFamily && b.BrowserMajor == c.BrowserMajor {
		score += 0.6
	}
	if b.OSFamily != "" && b.OSFamily == c.OSFamily {
		score += 0.4
	}
	return score
}

func fingerprintUserAgent(ua string) deviceFingerprint {
	lower := strings.ToLower(ua)

	fp := deviceFingerprint{
		OSFamily: osFamily(lower),
	}

	// Chromium derivatives embed a Chrome/ product token, so the more
	// specific markers have to win.
	switch {
	case strings.Contains(lower, "edg/"):
		fp.BrowserFamily = "edge"
		fp.BrowserMajor = majorVersionAfter(lower, "edg/")
	case strings.Contains(lower, "opr/"):
		fp.BrowserFamily = "opera"
		fp.BrowserMajor = majorVersionAfter(lower, "opr/")
	case strings.Contains(lower, "chrome/"):
		fp.BrowserFamily = "chrome"
		fp.BrowserMajor = majorVersionAfter(lower, "chrome/")
	case strings.Contains(lower, "firefox/"):
		fp.BrowserFamily = "firefox"
		fp.BrowserMajor = majorVersionAfter(lower, "firefox/")
	case strings.Contains(lower, "safari/"):
		fp.BrowserFamily = "safari"
		fp.BrowserMajor = majorVersionAfter(lower, "version/")
	}

	return fp
}

func osFamily(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"):
		return "ios"
	case strings.Contains(lower, "mac os"), strings.Contains(lower, "macintosh"):
		return "macos"
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "linux"):
		return "linux"
	}
	return ""
}

func majorVersionAfter(lower, marker string) string {
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return ""
	}
	rest := lower[idx+len(marker):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	return rest[:end]
}
