// Package runmeta identifies one invocation of bfuzz for correlating its
// CSV output, contradictions file, and structured logs.
package runmeta

import (
	"time"

	"github.com/google/uuid"
)

// Metadata is attached to every CSV header comment and carried in every
// structured log entry's "run" field so a fuzzing run's artifacts can be
// correlated after the fact. It is pure bookkeeping: bfuzz persists
// nothing beyond the CSV and contradictions file it already writes.
type Metadata struct {
	RunID      uuid.UUID
	StartTime  time.Time
	ConfigPath string
}

// New mints a fresh run identity for configPath, stamped at startTime.
func New(configPath string, startTime time.Time) Metadata {
	return Metadata{
		RunID:      uuid.New(),
		StartTime:  startTime,
		ConfigPath: configPath,
	}
}

// HeaderComment renders the metadata as the CSV's leading comment line.
func (m Metadata) HeaderComment() string {
	return "# run=" + m.RunID.String() + " start=" + m.StartTime.UTC().Format(time.RFC3339) + " config=" + m.ConfigPath
}
