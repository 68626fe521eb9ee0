package output

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/offlinefirst/framegrab/pkg/capture"
	"github.com/offlinefirst/framegrab/pkg/logging"
)

// DefaultQueueSize bounds pending downloads.
const DefaultQueueSize = 16

// Saved reports the outcome of one download.
type Saved struct {
	Blob Blob
	Path string
	Err  error
}

// Options configure a Sink.
type Options struct {
	Retention time.Duration
	// Downloader is nil when auto-download is disabled.
	Downloader *Downloader
	Logger     *slog.Logger
	Clock      func() time.Time
	QueueSize  int
	// OnSaved is called from the Run goroutine after each download attempt.
	OnSaved func(Saved)
}

type job struct {
	shot capture.Screenshot
	blob Blob
}

// Sink consumes screenshot events. Retention happens inline; downloads are
// queued so the controller's loop never waits on the disk.
type Sink struct {
	store      *Store
	downloader *Downloader
	logger     *slog.Logger
	onSaved    func(Saved)

	mu     sync.Mutex
	queue  chan job
	closed bool
}

// NewSink constructs a sink. Call Run to process downloads.
func NewSink(opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Sink{
		store:      NewStore(opts.Retention, opts.Clock),
		downloader: opts.Downloader,
		logger:     logging.Component(logger, "output"),
		onSaved:    opts.OnSaved,
		queue:      make(chan job, size),
	}
}

// Store exposes retained blobs.
func (s *Sink) Store() *Store { return s.store }

// Handle retains a screenshot event's image and queues its download.
// Other events are ignored.
func (s *Sink) Handle(ev capture.Event) (Blob, bool) {
	if ev.Kind != capture.EventScreenshot || ev.Screenshot == nil {
		return Blob{}, false
	}
	shot := *ev.Screenshot
	blob := s.store.Put(shot)
	if s.downloader == nil {
		return blob, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return blob, true
	}
	select {
	case s.queue <- job{shot: shot, blob: blob}:
	default:
		s.logger.Warn("download queue full, dropping still", logging.KeySequence, shot.Sequence, "filename", shot.Filename)
	}
	return blob, true
}

// Listener adapts Handle to a capture.Listener.
func (s *Sink) Listener() capture.Listener {
	return func(ev capture.Event) {
		s.Handle(ev)
	}
}

// Run processes queued downloads until Close drains the queue or ctx ends.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-s.queue:
			if !ok {
				return nil
			}
			s.save(j)
		}
	}
}

func (s *Sink) save(j job) {
	path, err := s.downloader.Save(j.shot)
	if err != nil {
		s.logger.Error("download failed", "filename", j.shot.Filename, logging.KeyError, err)
	} else {
		s.logger.Info("screenshot saved", "path", path, logging.KeySequence, j.shot.Sequence)
	}
	if s.onSaved != nil {
		s.onSaved(Saved{Blob: j.blob, Path: path, Err: err})
	}
}

// Close stops accepting downloads and releases retained blobs. Queued
// downloads are still written by Run.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.store.Close()
}
