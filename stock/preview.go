/*
preview.go - Side-effect-free dry run of a movement

PURPOSE:
  Shows what a movement would do before the user confirms it. The stock-in
  and stock-out forms call this on every keystroke, so it touches no store
  and no clock: same inputs, same output.

PARITY:
  ResultingStock comes from NextStock, the same function Commit uses.
  Preview(item, t, q).ResultingStock == Commit(...).Item.CurrentStock
  whenever item.CurrentStock has not changed in between.

WARNINGS:
  - the monitor's severity for the resulting stock (anything but normal)
  - "exhausted" when a StockOut lands exactly on zero
  - "insufficient" when a StockOut would go negative (Commit will reject it)
*/
package stock

import "fmt"

type WarningCode string

const (
	WarningCritical     WarningCode = "critical"
	WarningLow          WarningCode = "low"
	WarningLimited      WarningCode = "limited"
	WarningExhausted    WarningCode = "exhausted"
	WarningInsufficient WarningCode = "insufficient"
)

type Warning struct {
	Code    WarningCode
	Message string
}

// PreviewResult is the prospective outcome of a movement.
type PreviewResult struct {
	CurrentStock   int
	ResultingStock int
	Delta          int
	Severity       Severity
	Warnings       []Warning
}

// Allowed reports whether Commit would accept the movement on the same item.
func (p PreviewResult) Allowed() bool {
	return p.ResultingStock >= 0
}

// Preview computes the effect of a movement using DefaultThresholds.
func Preview(item Item, t MovementType, quantity int) (PreviewResult, error) {
	return PreviewWith(DefaultThresholds, item, t, quantity)
}

// PreviewWith computes the effect of a movement against the given thresholds.
func PreviewWith(th Thresholds, item Item, t MovementType, quantity int) (PreviewResult, error) {
	next, err := NextStock(item.CurrentStock, t, quantity)
	if err != nil {
		return PreviewResult{}, err
	}

	res := PreviewResult{
		CurrentStock:   item.CurrentStock,
		ResultingStock: next,
		Delta:          signedDelta(t, quantity),
		Severity:       th.Classify(next),
	}

	if next < 0 {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarningInsufficient,
			Message: fmt.Sprintf("requested %d exceeds available %d", quantity, item.CurrentStock),
		})
		return res, nil
	}

	switch res.Severity {
	case SeverityCritical:
		res.Warnings = append(res.Warnings, Warning{Code: WarningCritical,
			Message: fmt.Sprintf("stock will be critical: %d remaining", next)})
	case SeverityLow:
		res.Warnings = append(res.Warnings, Warning{Code: WarningLow,
			Message: fmt.Sprintf("stock will be low: %d remaining", next)})
	case SeverityLimited:
		res.Warnings = append(res.Warnings, Warning{Code: WarningLimited,
			Message: fmt.Sprintf("stock will be limited: %d remaining", next)})
	}

	if t == StockOut && next == 0 {
		res.Warnings = append(res.Warnings, Warning{Code: WarningExhausted, Message: "stock will be exhausted"})
	}
	return res, nil
}
