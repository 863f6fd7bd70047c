package enums

// SettlementTrigger records what initiated a settlement attempt.
type SettlementTrigger string

const (
	SettlementTriggerManual SettlementTrigger = "manual"
	SettlementTriggerTimer  SettlementTrigger = "timer"
	SettlementTriggerSweep  SettlementTrigger = "sweep"
)

// IsAutomatic reports whether the trigger fires without buyer action.
func (t SettlementTrigger) IsAutomatic() bool {
	return t == SettlementTriggerTimer || t == SettlementTriggerSweep
}
