//go:build linux

package mpris

import (
	"fmt"
	"hash/fnv"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/playback"
)

// chapterGrace is how far into a chapter Previous still returns to the
// chapter start instead of the one before it, in seconds.
const chapterGrace = 3.0

// Adapter exposes the coordinator over D-Bus. Desktop commands are
// dispatched onto the bus as ordinary playback events, so they take the
// same validated path as events from any other surface.
type Adapter struct {
	server *server.Server
}

// New creates and starts a new MPRIS adapter.
func New(b *bus.Bus, coord *playback.Coordinator) (*Adapter, error) {
	a := &Adapter{}

	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{bus: b, coord: coord}

	a.server = server.NewServer("cadenza", rootAdapter, playerAdapter)

	// Start the server in background
	go func() {
		_ = a.server.Listen()
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported - headless daemon
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - daemon manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil
}

func (r *rootAdapter) Identity() (string, error) {
	return "Cadenza", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file", "http", "https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/mp4", "audio/flac", "audio/ogg"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter against the
// coordinator's state snapshot.
type playerAdapter struct {
	bus   *bus.Bus
	coord *playback.Coordinator
}

// Next jumps to the start of the next chapter, when there is one.
func (p *playerAdapter) Next() error {
	snap := p.coord.Context()
	if start, ok := nextChapterStart(snap); ok {
		p.bus.Dispatch(playback.Seek{Position: start})
	}
	return nil
}

// Previous returns to the current chapter start, or to the chapter
// before when playback is already near the start.
func (p *playerAdapter) Previous() error {
	snap := p.coord.Context()
	if start, ok := previousChapterStart(snap); ok {
		p.bus.Dispatch(playback.Seek{Position: start})
	}
	return nil
}

func (p *playerAdapter) Pause() error {
	p.bus.Dispatch(playback.Pause{})
	return nil
}

func (p *playerAdapter) PlayPause() error {
	if p.coord.Context().CurrentState == playback.StatePlaying {
		p.bus.Dispatch(playback.Pause{})
	} else {
		p.bus.Dispatch(playback.Play{})
	}
	return nil
}

func (p *playerAdapter) Stop() error {
	p.bus.Dispatch(playback.Stop{})
	return nil
}

func (p *playerAdapter) Play() error {
	p.bus.Dispatch(playback.Play{})
	return nil
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	snap := p.coord.Context()
	position := snap.Position + float64(offset)/1e6
	if position < 0 {
		position = 0
	}
	p.bus.Dispatch(playback.Seek{Position: position})
	return nil
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	target := float64(position) / 1e6
	if target < 0 {
		target = 0
	}
	p.bus.Dispatch(playback.Seek{Position: target})
	return nil
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported - tracks come from the library
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	snap := p.coord.Context()
	switch snap.CurrentState {
	case playback.StatePlaying, playback.StateBuffering:
		return types.PlaybackStatusPlaying, nil
	case playback.StatePaused, playback.StateReady:
		return types.PlaybackStatusPaused, nil
	case playback.StateSeeking:
		if snap.PreSeekState != nil && *snap.PreSeekState == playback.StatePlaying {
			return types.PlaybackStatusPlaying, nil
		}
		return types.PlaybackStatusPaused, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return p.coord.Context().PlaybackRate, nil
}

func (p *playerAdapter) SetRate(rate float64) error {
	if rate > 0 {
		p.bus.Dispatch(playback.SetRate{Rate: rate})
	}
	return nil
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	snap := p.coord.Context()
	track := snap.CurrentTrack
	if track == nil {
		return types.Metadata{}, nil
	}

	duration := snap.Duration
	if duration <= 0 {
		duration = track.Duration
	}

	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(track.Key())),
		Length:  types.Microseconds(duration * 1e6),
		Title:   track.Title,
	}
	if track.Author != "" {
		meta.Artist = []string{track.Author}
	}
	if track.CoverPath != "" {
		meta.ArtUrl = "file://" + track.CoverPath
	}

	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return p.coord.Context().Volume, nil
}

func (p *playerAdapter) SetVolume(volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	p.bus.Dispatch(playback.SetVolume{Volume: volume})
	return nil
}

func (p *playerAdapter) Position() (int64, error) {
	return int64(p.coord.Context().Position * 1e6), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 0.5, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 3.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	_, ok := nextChapterStart(p.coord.Context())
	return ok, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	_, ok := previousChapterStart(p.coord.Context())
	return ok, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.coord.Context().CurrentTrack != nil, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// nextChapterStart returns the start of the first chapter past the
// current position. Chapters are ordered by start time.
func nextChapterStart(snap playback.StateContext) (float64, bool) {
	if snap.CurrentTrack == nil {
		return 0, false
	}
	for _, ch := range snap.CurrentTrack.Chapters {
		if ch.Start > snap.Position {
			return ch.Start, true
		}
	}
	return 0, false
}

// previousChapterStart returns the last chapter start at least
// chapterGrace seconds behind the current position.
func previousChapterStart(snap playback.StateContext) (float64, bool) {
	if snap.CurrentTrack == nil {
		return 0, false
	}
	found := false
	start := 0.0
	for _, ch := range snap.CurrentTrack.Chapters {
		if ch.Start < snap.Position-chapterGrace {
			start = ch.Start
			found = true
		}
	}
	return start, found
}

func formatTrackID(key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
