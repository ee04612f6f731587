package playback

// Track identifies a playable item from the media server together with
// the metadata the coordinator and its observers care about.
type Track struct {
	LibraryItemID string    `json:"libraryItemId"`
	EpisodeID     string    `json:"episodeId,omitempty"`
	Title         string    `json:"title"`
	Author        string    `json:"author,omitempty"`
	Duration      float64   `json:"duration"` // seconds
	CoverPath     string    `json:"coverPath,omitempty"`
	Chapters      []Chapter `json:"chapters,omitempty"`
}

// Chapter is a named span inside a track, in media seconds.
type Chapter struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Key returns a stable identity for the track, unique per playable unit.
func (t Track) Key() string {
	if t.EpisodeID != "" {
		return t.LibraryItemID + "/" + t.EpisodeID
	}
	return t.LibraryItemID
}

// ChapterAt returns the chapter covering the given position, or nil when
// the track has no chapters or the position falls outside all of them.
func (t Track) ChapterAt(position float64) *Chapter {
	for i := range t.Chapters {
		c := t.Chapters[i]
		if position >= c.Start && position < c.End {
			return &c
		}
	}
	return nil
}

// Clone returns a deep copy, so context snapshots never share chapter
// slices with the coordinator's own track.
func (t Track) Clone() Track {
	out := t
	if t.Chapters != nil {
		out.Chapters = make([]Chapter, len(t.Chapters))
		copy(out.Chapters, t.Chapters)
	}
	return out
}
