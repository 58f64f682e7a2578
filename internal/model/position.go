package model

// PositionState is the lifecycle state of an open position.
type PositionState int32

const (
	StateRequesting PositionState = iota
	StateAwaitingFill
	StateProtectivePending
	StateMonitoring
	StateSettled
	StateVoided
)

func (s PositionState) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateAwaitingFill:
		return "awaiting_fill"
	case StateProtectivePending:
		return "protective_pending"
	case StateMonitoring:
		return "monitoring"
	case StateSettled:
		return "settled"
	case StateVoided:
		return "voided"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s PositionState) Terminal() bool {
	return s == StateSettled || s == StateVoided
}

// EntryRequest is a request to open a long position on an instrument.
// Exactly one of RiskAmount (quote currency) or RiskPercentage (fraction of
// buying power) must be set; both are bounded by the configured max risk.
// StopLossPct and TakeProfitPct are optional fractional distances from the
// entry price estimate (e.g. 0.02 = 2%).
type EntryRequest struct {
	Symbol         string
	RiskAmount     float64
	RiskPercentage float64
	StopLossPct    float64
	TakeProfitPct  float64
}
