/*
monitor.go - Low-stock classification

PURPOSE:
  Classifies a stock level into an advisory Severity and decides when a
  change of severity is worth a notification.

THRESHOLDS:
  stock <= Critical           → SeverityCritical
  Critical < stock <= Low     → SeverityLow
  Low < stock < Limited       → SeverityLimited
  stock >= Limited            → SeverityNormal

  The stock-in and stock-out screens historically disagreed (≤2/≤5/<10 in
  one, flat <10 in the other). DefaultThresholds is the single table; both
  flows read it, and config can override it.

NOTIFICATION RULE:
  Notify only when severity DEGRADES. Stock that is already low and moves
  sideways or recovers stays quiet.
*/
package stock

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity is ordered: a larger value is more severe.
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityLimited
	SeverityLow
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityNormal:   "normal",
	SeverityLimited:  "limited",
	SeverityLow:      "low",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity is the inverse of String.
func ParseSeverity(s string) (Severity, error) {
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// THRESHOLDS
// =============================================================================

const (
	DefaultCriticalThreshold = 2
	DefaultLowThreshold      = 5
	DefaultLimitedThreshold  = 10
)

// Thresholds are the restock boundaries. Critical and Low are inclusive
// upper bounds; Limited is exclusive.
type Thresholds struct {
	Critical int
	Low      int
	Limited  int
}

// DefaultThresholds is the consolidated threshold table.
var DefaultThresholds = Thresholds{
	Critical: DefaultCriticalThreshold,
	Low:      DefaultLowThreshold,
	Limited:  DefaultLimitedThreshold,
}

// Validate requires 0 <= Critical < Low < Limited.
func (t Thresholds) Validate() error {
	if t.Critical < 0 || t.Critical >= t.Low || t.Low >= t.Limited {
		return fmt.Errorf("thresholds must satisfy 0 <= critical < low < limited, got %d/%d/%d",
			t.Critical, t.Low, t.Limited)
	}
	return nil
}

// Classify maps a stock level to a severity. It is a non-increasing step
// function of stock: more stock is never more severe.
func (t Thresholds) Classify(stock int) Severity {
	switch {
	case stock <= t.Critical:
		return SeverityCritical
	case stock <= t.Low:
		return SeverityLow
	case stock < t.Limited:
		return SeverityLimited
	default:
		return SeverityNormal
	}
}

// Classify uses DefaultThresholds.
func Classify(stock int) Severity {
	return DefaultThresholds.Classify(stock)
}

// ShouldNotify is true only when the severity got worse.
func ShouldNotify(previous, next Severity) bool {
	return next > previous
}

// =============================================================================
// MONITOR - Classification plus notification
// =============================================================================

// Monitor inspects balance changes and forwards degradations to a Notifier.
type Monitor struct {
	Thresholds Thresholds
	Notifier   Notifier
}

// Observation is what the monitor concluded about one balance change.
type Observation struct {
	Previous Severity
	Current  Severity
	Notified bool
	Err      error
}

// Observe classifies both balances and notifies on degradation. A nil
// Notifier classifies only.
func (m *Monitor) Observe(ctx context.Context, item Item, previousStock int) Observation {
	obs := Observation{
		Previous: m.Thresholds.Classify(previousStock),
		Current:  m.Thresholds.Classify(item.CurrentStock),
	}
	if m.Notifier == nil || !ShouldNotify(obs.Previous, obs.Current) {
		return obs
	}
	obs.Err = m.Notifier.Notify(ctx, item.ID, obs.Current, NotificationMessage(item, obs.Current))
	obs.Notified = obs.Err == nil
	return obs
}

// NotificationMessage is the default text for a low-stock notification.
func NotificationMessage(item Item, severity Severity) string {
	label := item.Name
	if label == "" {
		label = string(item.ID)
	}
	return fmt.Sprintf("%s stock is %s: %d remaining", label, severity, item.CurrentStock)
}
