package playback

// Service is the command contract toward the component that owns the
// actual native player handle. Every method is an idempotent command
// returning success or failure; implementations must never dispatch
// events back into the coordinator, or the serialized loop would
// deadlock on itself.
type Service interface {
	ExecuteLoadTrack(libraryItemID, episodeID string) error
	ExecutePlay() error
	ExecutePause() error
	ExecuteStop() error
	ExecuteSeek(position float64) error
	ExecuteSetRate(rate float64) error
	ExecuteSetVolume(volume float64) error
}
