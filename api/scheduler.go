/*
scheduler.go - Periodic balance drift check

PURPOSE:
  Every CheckInterval, recomputes each account's balance from its payment
  history and compares it with the stored balance. Any difference is
  logged at warn with both figures; the check never writes.

  Drift appears when balances were edited around the service, or when
  legacy outbound re-debit mode is on and payments were edited.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Checks once immediately on Start
  - The last report is kept for GET /api/accounts/drift

CONFIGURATION:
  - CheckInterval: How often to check (BALANCE_CHECK_INTERVAL, default 1h)
  - Enabled: false when the interval is 0

USAGE:
  monitor := NewDriftMonitor(svc, log)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - ledger/balances.go: AccountBalances
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/club-ledger/ledger"
)

// DriftMonitor periodically compares stored and derived balances.
type DriftMonitor struct {
	Service       *ledger.Service
	CheckInterval time.Duration
	Enabled       bool

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu    sync.RWMutex
	last      *ledger.BalanceSheet
	lastAt    time.Time
	lastError error
}

// NewDriftMonitor creates a monitor checking once an hour.
func NewDriftMonitor(svc *ledger.Service, log zerolog.Logger) *DriftMonitor {
	return &DriftMonitor{
		Service:       svc,
		CheckInterval: time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the periodic check.
func (m *DriftMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled || m.CheckInterval <= 0 {
		m.log.Info().Msg("drift monitor disabled")
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)
	go m.run()

	m.log.Info().Dur("interval", m.CheckInterval).Msg("drift monitor started")
}

// Stop stops the monitor and waits for a running check to finish.
func (m *DriftMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.log.Info().Msg("drift monitor stopped")
	}
}

func (m *DriftMonitor) run() {
	defer m.wg.Done()

	m.Check(context.Background())
	for {
		select {
		case <-m.ticker.C:
			m.Check(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Check runs one comparison, logs drifted accounts and stores the report.
func (m *DriftMonitor) Check(ctx context.Context) (*ledger.BalanceSheet, error) {
	sheet, err := m.Service.AccountBalances(ctx)

	m.lastMu.Lock()
	m.last, m.lastAt, m.lastError = sheet, time.Now().UTC(), err
	m.lastMu.Unlock()

	if err != nil {
		m.log.Error().Err(err).Msg("balance drift check failed")
		return nil, err
	}

	drifted := 0
	for _, a := range sheet.Accounts {
		if a.Drift.IsZero() {
			continue
		}
		drifted++
		m.log.Warn().
			Int64("account_id", int64(a.Account.ID)).
			Str("account", a.Account.Name).
			Str("stored", money(a.Stored)).
			Str("derived", money(a.Derived)).
			Str("drift", money(a.Drift)).
			Msg("account balance drift")
	}
	m.log.Debug().Int("accounts", len(sheet.Accounts)).Int("drifted", drifted).Msg("balance drift check complete")
	return sheet, nil
}

// Last returns the most recent report and when it was taken. A nil sheet
// means no check has completed yet.
func (m *DriftMonitor) Last() (*ledger.BalanceSheet, time.Time, error) {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last, m.lastAt, m.lastError
}

// DriftReportDTO is the body of GET /api/accounts/drift.
type DriftReportDTO struct {
	CheckedAt string           `json:"checked_at"`
	Report    *BalanceSheetDTO `json:"report"`
	Error     string           `json:"error,omitempty"`
}

// ServeHTTP reports the last check, running one first if none has.
func (m *DriftMonitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sheet, at, err := m.Last()
	if sheet == nil && err == nil {
		sheet, err = m.Check(r.Context())
		_, at, _ = m.Last()
	}

	resp := DriftReportDTO{CheckedAt: timestamp(at)}
	if err != nil {
		resp.Error = "last check failed"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	dto := toBalanceSheetDTO(sheet)
	resp.Report = &dto
	writeJSON(w, http.StatusOK, resp)
}
