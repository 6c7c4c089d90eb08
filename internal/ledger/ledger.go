package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"steward/internal/protocol"
	"steward/pkg/logging"
)

// Ledger tracks per-account balances across runs. The previous run's state
// lives in two files: a short fingerprint over the quota map, and the full
// balance map for per-account deltas. Both are rewritten at the end of
// every run so the next run always diffs against this one.
type Ledger struct {
	logger   logging.Logger
	hashPath string
	dataPath string

	lastHash     string
	lastBalances map[string]protocol.Balance
	current      map[string]protocol.Balance
	changed      bool
}

// Delta describes how one account's balance moved since the previous run.
// QuotaChange equals Recharge minus UsedChange; all three are carried so
// reports can show each movement with its before and after values.
type Delta struct {
	Recharge    float64
	UsedChange  float64
	QuotaChange float64
	Last        protocol.Balance
	Current     protocol.Balance
}

// Load reads the previous run's state. Missing or corrupt files mean a
// first run and are never an error.
func Load(hashPath, dataPath string, logger logging.Logger) *Ledger {
	l := &Ledger{
		logger:       logger,
		hashPath:     hashPath,
		dataPath:     dataPath,
		lastBalances: make(map[string]protocol.Balance),
		current:      make(map[string]protocol.Balance),
	}

	if raw, err := os.ReadFile(hashPath); err == nil {
		l.lastHash = strings.TrimSpace(string(raw))
	}
	if raw, err := os.ReadFile(dataPath); err == nil {
		var prev map[string]protocol.Balance
		if err := json.Unmarshal(raw, &prev); err != nil {
			logger.WithError(err).Warn("Previous balance data unreadable; treating as first run")
		} else {
			l.lastBalances = prev
		}
	}
	return l
}

// RecordCurrent stores this run's balance for an account. Nothing is
// persisted until FinalizeRun. A key recorded twice keeps the last write.
func (l *Ledger) RecordCurrent(key string, b protocol.Balance) {
	l.current[key] = b
}

// ReportDelta diffs an account's current balance against the previous
// run. The second return is false when there is no baseline for the key
// or when neither recharge nor consumption moved.
func (l *Ledger) ReportDelta(key string, current protocol.Balance) (Delta, bool) {
	last, ok := l.lastBalances[key]
	if !ok {
		return Delta{}, false
	}

	d := Delta{
		Recharge:    current.Total() - last.Total(),
		UsedChange:  current.Used - last.Used,
		QuotaChange: current.Quota - last.Quota,
		Last:        last,
		Current:     current,
	}
	if d.Recharge == 0 && d.UsedChange == 0 {
		return Delta{}, false
	}
	return d, true
}

// FinalizeRun fingerprints this run's balances, compares against the
// previous fingerprint, and persists both state files unconditionally.
// Returns whether the balance set changed; an empty run is a no-op.
func (l *Ledger) FinalizeRun() bool {
	if len(l.current) == 0 {
		return false
	}

	currentHash := fingerprint(l.current)
	switch {
	case l.lastHash == "":
		l.changed = true
		l.logger.Info("First run; recording balance baseline")
	case currentHash != l.lastHash:
		l.changed = true
		l.logger.Info("Balance change detected")
	default:
		l.changed = false
		l.logger.Info("Balances unchanged since previous run")
	}

	if err := os.WriteFile(l.hashPath, []byte(currentHash), 0o644); err != nil {
		l.logger.WithError(err).Warn("Failed to persist balance fingerprint")
	}
	if data, err := json.MarshalIndent(l.current, "", "  "); err != nil {
		l.logger.WithError(err).Warn("Failed to encode balance data")
	} else if err := os.WriteFile(l.dataPath, data, 0o644); err != nil {
		l.logger.WithError(err).Warn("Failed to persist balance data")
	}

	return l.changed
}

// Changed reports the verdict of the last FinalizeRun.
func (l *Ledger) Changed() bool {
	return l.changed
}

// fingerprint hashes the quota side of the balance map only: quota moves
// in both directions while used only grows, which makes quota the better
// cheap signal for "did anything interesting happen".
func fingerprint(balances map[string]protocol.Balance) string {
	quotas := make(map[string]float64, len(balances))
	for key, b := range balances {
		quotas[key] = b.Quota
	}
	// encoding/json writes map keys in sorted order, which keeps the
	// serialization deterministic.
	data, _ := json.Marshal(quotas)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
