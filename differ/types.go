package differ

import "github.com/defistate/clamm-engine-go/protocols/clamm"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff summarizes the changes from commit FromSeq to commit ToSeq.
type StateDiff struct {
	Timestamp uint64               `json:"timestamp"`
	FromSeq   uint64               `json:"fromSeq"`
	ToSeq     uint64               `json:"toSeq"`
	Pools     clamm.PoolSystemDiff `json:"pools"`
}
