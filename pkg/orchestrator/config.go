package orchestrator

import "time"

// Config holds the orchestrator's own tunables. pkg/config's top-level
// Config maps onto this subset when constructing an Orchestrator.
type Config struct {
	CycleDelayMs              int64
	MaxConsecutiveIdleCycles  int64
	SuperegoAuditInterval     int64
	AutonomyReminderInterval  int64
	IdleSleepEnabled          bool
	ConversationIdleTimeoutMs int64
	MaxConversationDuration   time.Duration
	AutonomyReminderText      string
}

// DefaultConfig returns conservative defaults matching spec §6's documented
// config keys (superegoAuditInterval: 20, autonomyReminderInterval: 10).
func DefaultConfig() Config {
	return Config{
		CycleDelayMs:              5000,
		MaxConsecutiveIdleCycles:  3,
		SuperegoAuditInterval:     20,
		AutonomyReminderInterval:  10,
		IdleSleepEnabled:          false,
		ConversationIdleTimeoutMs: int64(2 * time.Minute / time.Millisecond),
		MaxConversationDuration:   10 * time.Minute,
		AutonomyReminderText:      "Remember: you act autonomously. Review PLAN and continue toward your goals without waiting for further instructions.",
	}
}
