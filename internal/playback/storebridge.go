package playback

// StoreBridge is the one-directional projection target: an external
// observable state container that user interfaces read. The coordinator
// only ever writes to it, treats every call as best-effort, and keeps
// processing when the target is unavailable.
type StoreBridge interface {
	UpdatePosition(position float64) error
	UpdatePlayingState(playing bool) error
	SetCurrentTrack(track *Track) error
	SetTrackLoading(loading bool) error
	SetSeeking(seeking bool) error
	SetPlaybackRate(rate float64) error
	SetVolume(volume float64) error
	SetPlaySessionID(sessionID string) error
	UpdateNowPlayingMetadata(track *Track, chapter *Chapter) error
}

// NopStoreBridge discards every projection. Used when a context runs
// without an attached interface.
type NopStoreBridge struct{}

var _ StoreBridge = NopStoreBridge{}

func (NopStoreBridge) UpdatePosition(float64) error                    { return nil }
func (NopStoreBridge) UpdatePlayingState(bool) error                   { return nil }
func (NopStoreBridge) SetCurrentTrack(*Track) error                    { return nil }
func (NopStoreBridge) SetTrackLoading(bool) error                      { return nil }
func (NopStoreBridge) SetSeeking(bool) error                           { return nil }
func (NopStoreBridge) SetPlaybackRate(float64) error                   { return nil }
func (NopStoreBridge) SetVolume(float64) error                         { return nil }
func (NopStoreBridge) SetPlaySessionID(string) error                   { return nil }
func (NopStoreBridge) UpdateNowPlayingMetadata(*Track, *Chapter) error { return nil }
