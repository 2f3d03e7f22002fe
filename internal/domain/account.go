package domain

// AccountState is a value snapshot of the account. The ledger is its only
// writer.
type AccountState struct {
	StartingBalance   float64
	CurrentBalance    float64
	TotalExposureUSD  float64
	TodayRealizedPnL  float64
	OpenPositionCount int
	DrawdownTripped   bool
}

// Drawdown is the fractional loss from the starting balance.
func (a AccountState) Drawdown() float64 {
	if a.StartingBalance <= 0 {
		return 0
	}
	return (a.StartingBalance - a.CurrentBalance) / a.StartingBalance
}

// TotalPnL is the realized profit since start.
func (a AccountState) TotalPnL() float64 {
	return a.CurrentBalance - a.StartingBalance
}
