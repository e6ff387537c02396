package token

import "sync"

// Metrics tracks operational statistics
type Metrics struct {
	mu                 sync.RWMutex
	TokensIssued       int64
	TokensRegenerated  int64
	ValidationsOK      int64
	ValidationsDenied  int64
	TokensExpired      int64
	LimitViolations    int64
	IPViolations       int64
	DeviceViolations   int64
	DownloadsRecorded  int64
	DownloadsFailed    int64
	JanitorSweeps      int64
	JanitorDeactivated int64
}

func (m *Metrics) IncrementTokensIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensIssued++
}

func (m *Metrics) IncrementTokensRegenerated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensRegenerated++
}

func (m *Metrics) IncrementValidationsOK() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationsOK++
}

func (m *Metrics) IncrementValidationsDenied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationsDenied++
}

func (m *Metrics) IncrementTokensExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensExpired++
}

func (m *Metrics) IncrementLimitViolations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LimitViolations++
}

func (m *Metrics) IncrementIPViolations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IPViolations++
}

func (m *Metrics) IncrementDeviceViolations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeviceViolations++
}

func (m *Metrics) IncrementDownloadsRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DownloadsRecorded++
}

func (m *Metrics) IncrementDownloadsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DownloadsFailed++
}

func (m *Metrics) AddJanitorSweep(deactivated int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JanitorSweeps++
	m.JanitorDeactivated += deactivated
}

func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"tokens_issued":       m.TokensIssued,
		"tokens_regenerated":  m.TokensRegenerated,
		"validations_ok":      m.ValidationsOK,
		"validations_denied":  m.ValidationsDenied,
		"tokens_expired":      m.TokensExpired,
		"limit_violations":    m.LimitViolations,
		"ip_violations":       m.IPViolations,
		"device_violations":   m.DeviceViolations,
		"downloads_recorded":  m.DownloadsRecorded,
		"downloads_failed":    m.DownloadsFailed,
		"janitor_sweeps":      m.JanitorSweeps,
		"janitor_deactivated": m.JanitorDeactivated,
	}
}
