package player

import (
	"fmt"
	"sync"

	"github.com/lvaillant/cadenza/internal/playback"
)

// Mock is a recording playback.Service for tests in other packages.
type Mock struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned by every command.
	Err error
}

var _ playback.Service = (*Mock)(nil)

func (m *Mock) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.Err
}

// Calls returns every executed command in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountOf returns how many recorded calls start with the given prefix.
func (m *Mock) CountOf(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (m *Mock) ExecuteLoadTrack(libraryItemID, episodeID string) error {
	if episodeID != "" {
		return m.record(fmt.Sprintf("load:%s/%s", libraryItemID, episodeID))
	}
	return m.record("load:" + libraryItemID)
}

func (m *Mock) ExecutePlay() error  { return m.record("play") }
func (m *Mock) ExecutePause() error { return m.record("pause") }
func (m *Mock) ExecuteStop() error  { return m.record("stop") }

func (m *Mock) ExecuteSeek(position float64) error {
	return m.record(fmt.Sprintf("seek:%g", position))
}

func (m *Mock) ExecuteSetRate(rate float64) error {
	return m.record(fmt.Sprintf("rate:%g", rate))
}

func (m *Mock) ExecuteSetVolume(volume float64) error {
	return m.record(fmt.Sprintf("volume:%g", volume))
}
