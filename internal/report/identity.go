package report

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout formats the run timestamp shared by every run file.
const TimestampLayout = "2006-01-02T15:04:05-UTC"

// Identity names one indexing run and the process executing it.
type Identity struct {
	Name      string
	TS        string
	Started   time.Time
	SessionID string
	Hostname  string
	PID       int
	UID       int
	GID       int
	Version   string
}

// NewIdentity captures the identity of a run named name starting at started.
func NewIdentity(name string, started time.Time, version string) Identity {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	started = started.UTC()
	return Identity{
		Name:      name,
		TS:        started.Format(TimestampLayout),
		Started:   started,
		SessionID: uuid.NewString(),
		Hostname:  hostname,
		PID:       os.Getpid(),
		UID:       os.Getuid(),
		GID:       os.Getgid(),
		Version:   version,
	}
}

// Label is "<name>.<ts>", the stem of every run file.
func (id Identity) Label() string {
	return id.Name + "." + id.TS
}
