package supervisor

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNoState is returned when no state file exists.
var ErrNoState = stderrors.New("no backend state recorded")

// Record is the on-disk description of a backend started by another
// reactiveviews process, used by the backend status and stop commands.
type Record struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
}

func writeState(path string, p *Process) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Record{PID: p.PID, Port: p.Port, URL: p.URL, StartedAt: p.StartedAt}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadState loads the record at path.
func ReadState(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &rec, nil
}

// Alive reports whether the recorded process still exists.
func (r *Record) Alive() bool {
	if r.PID <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(r.PID))
	if err != nil || !ok {
		return false
	}
	// A reused pid belongs to a process created after ours started.
	if p, err := process.NewProcess(int32(r.PID)); err == nil && !r.StartedAt.IsZero() {
		if created, err := p.CreateTime(); err == nil && time.UnixMilli(created).After(r.StartedAt.Add(time.Second)) {
			return false
		}
	}
	return true
}

// StopRecorded stops the backend described by the state file at path:
// SIGTERM to its group, SIGKILL after timeout. The file is removed. A missing
// file or a dead process is not an error.
func StopRecorded(ctx context.Context, path string, timeout time.Duration) (*Record, error) {
	rec, err := ReadState(path)
	if err != nil {
		if stderrors.Is(err, ErrNoState) {
			return nil, nil
		}
		return nil, err
	}
	defer os.Remove(path)

	if !rec.Alive() {
		return rec, nil
	}

	if err := terminateGroup(rec.PID); err != nil {
		return rec, fmt.Errorf("signalling pid %d: %w", rec.PID, err)
	}
	if waitGone(ctx, rec, timeout) {
		return rec, nil
	}
	if err := killGroup(rec.PID); err != nil && rec.Alive() {
		return rec, fmt.Errorf("killing pid %d: %w", rec.PID, err)
	}
	return rec, nil
}

func waitGone(ctx context.Context, rec *Record, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !rec.Alive() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
