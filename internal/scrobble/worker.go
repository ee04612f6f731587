package scrobble

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/errmsg"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
)

const (
	// Tracks shorter than 30 seconds are never scrobbled.
	minTrackSeconds = 30
	// Listening threshold cap: 4 minutes.
	fourMinutes = 240
	// Progress ticks arrive about once a second. A larger jump between
	// two ticks is a seek or a restore, not listening time.
	maxCountedStep = 10
)

// Notifier receives now-playing updates and scrobble submissions.
// *Client is the production implementation.
type Notifier interface {
	IsAuthenticated() bool
	UpdateNowPlaying(Submission) error
	Scrobble(Submission) error
}

var _ Notifier = (*Client)(nil)

// Options configures a Worker.
type Options struct {
	Coordinator *playback.Coordinator
	Client      Notifier
	Log         *logrus.Entry
}

// Worker follows the coordinator's track and position notifications. A
// track change sends a now-playing update; accumulated listening time
// past the threshold sends one scrobble per track. Submission failures
// are logged and never propagated.
type Worker struct {
	log    *logrus.Entry
	coord  *playback.Coordinator
	client Notifier

	sub     *playback.Subscription
	done    chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup

	// current is touched only by the run loop.
	current *playState
}

// playState accumulates listening time for the track being played.
type playState struct {
	track     playback.Track
	startedAt time.Time
	lastPos   float64
	primed    bool // lastPos holds a real observation
	listened  float64
	duration  float64
	scrobbled bool
}

// NewWorker creates a worker. Call Start to begin following the
// coordinator.
func NewWorker(opts Options) *Worker {
	log := opts.Log
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "scrobble")
	}
	return &Worker{
		log:     log,
		coord:   opts.Coordinator,
		client:  opts.Client,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start subscribes to the coordinator and launches the worker loop.
func (w *Worker) Start() {
	w.sub = w.coord.Subscribe()
	go w.run()
}

// Close stops the loop and waits for in-flight submissions.
func (w *Worker) Close() {
	close(w.done)
	<-w.stopped
	w.coord.Unsubscribe(w.sub)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return
		case tc, ok := <-w.sub.TrackChanged:
			if !ok {
				return
			}
			w.onTrack(tc)
		case pc, ok := <-w.sub.PositionChanged:
			if !ok {
				return
			}
			w.onPosition(pc)
		}
	}
}

// onTrack resets listening accumulation and announces the new track.
func (w *Worker) onTrack(tc playback.TrackChange) {
	if tc.Current == nil {
		w.current = nil
		return
	}

	w.current = &playState{track: *tc.Current, startedAt: time.Now()}

	if !w.client.IsAuthenticated() {
		return
	}
	sub, ok := submissionFor(*tc.Current, tc.Current.Duration, w.current.startedAt)
	if !ok {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.client.UpdateNowPlaying(sub); err != nil {
			// Now playing is best-effort.
			w.log.Debug(errmsg.Format(errmsg.OpNowPlaying, err))
		}
	}()
}

// onPosition counts forward movement as listening time and checks the
// scrobble threshold.
func (w *Worker) onPosition(pc playback.PositionChange) {
	s := w.current
	if s == nil {
		return
	}

	if pc.Duration > 0 {
		s.duration = pc.Duration
	}
	if s.primed {
		delta := pc.Position - s.lastPos
		if delta > 0 && delta <= maxCountedStep {
			s.listened += delta
		}
	}
	s.lastPos = pc.Position
	s.primed = true

	w.maybeScrobble(s)
}

// maybeScrobble submits the track once enough of it was heard.
// Last.fm rules: scrobble after 50% of the duration or 4 minutes of
// listening, whichever comes first. The track must be at least 30
// seconds long, and scrobbles at most once.
func (w *Worker) maybeScrobble(s *playState) {
	if s.scrobbled || !w.client.IsAuthenticated() {
		return
	}

	duration := s.duration
	if duration <= 0 {
		duration = s.track.Duration
	}
	if duration < minTrackSeconds {
		return
	}

	threshold := duration / 2
	if threshold > fourMinutes {
		threshold = fourMinutes
	}
	if s.listened < threshold {
		return
	}

	s.scrobbled = true
	sub, ok := submissionFor(s.track, duration, s.startedAt)
	if !ok {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.client.Scrobble(sub); err != nil {
			w.log.Warn(errmsg.Format(errmsg.OpScrobble, err))
		}
	}()
}

// submissionFor builds a Submission from a track. Last.fm rejects plays
// without an artist, so tracks with no author are skipped.
func submissionFor(t playback.Track, duration float64, startedAt time.Time) (Submission, bool) {
	if t.Author == "" || t.Title == "" {
		return Submission{}, false
	}
	return Submission{
		Artist:    t.Author,
		Track:     t.Title,
		Duration:  time.Duration(duration * float64(time.Second)),
		Timestamp: startedAt,
	}, true
}
