package perception

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/rehearse/internal/models"
)

const (
	DefaultInterval = 200 * time.Millisecond // 5 Hz
	DefaultScale    = 0.25
)

var (
	ErrNotInitialized = errors.New("perception: extractor not initialized")
	ErrRunning        = errors.New("perception: analysis already running")
)

// FrameSource yields the current video frame. A camera adapter, a decoded
// file or a test fixture can all satisfy it.
type FrameSource interface {
	Frame() (image.Image, error)
}

// FrameFunc adapts a function to FrameSource.
type FrameFunc func() (image.Image, error)

func (f FrameFunc) Frame() (image.Image, error) { return f() }

type Option func(*Extractor)

func WithInterval(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithBodyAnalysis enables the body, gesture and posture heuristics.
func WithBodyAnalysis(on bool) Option { return func(e *Extractor) { e.body = on } }

func WithClock(now func() time.Time) Option { return func(e *Extractor) { e.now = now } }

func WithLogger(l logrus.FieldLogger) Option { return func(e *Extractor) { e.log = l } }

// Extractor samples a FrameSource on a fixed interval and keeps a running
// aggregate. It is safe for concurrent use.
type Extractor struct {
	interval time.Duration
	scale    float64
	body     bool
	now      func() time.Time
	log      logrus.FieldLogger

	mu         sync.Mutex
	ready      bool
	surface    *Surface
	prev       *Surface
	prevLum    float64
	hasPrevLum bool
	acc        Accumulator
	dropped    int
	stop       chan struct{}
	done       chan struct{}
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		interval: DefaultInterval,
		scale:    DefaultScale,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Initialize prepares the offscreen surface. It is idempotent.
func (e *Extractor) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scale <= 0 || e.scale > 1 {
		return fmt.Errorf("perception: invalid scale %v", e.scale)
	}
	if e.surface == nil {
		e.surface = NewSurface(0, 0)
	}
	e.ready = true
	return nil
}

// StartAnalysis resets the aggregate and begins sampling src in the
// background. It returns immediately.
func (e *Extractor) StartAnalysis(src FrameSource) error {
	if src == nil {
		return errors.New("perception: nil frame source")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}
	if e.stop != nil {
		return ErrRunning
	}

	e.acc.Begin(e.now())
	e.prev = nil
	e.hasPrevLum = false
	e.dropped = 0
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(src, e.stop, e.done)
	return nil
}

func (e *Extractor) loop(src FrameSource, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.Tick(src)
		}
	}
}

// StopAnalysis halts sampling and returns the final aggregate. Calling it
// when nothing is running just returns the current aggregate.
func (e *Extractor) StopAnalysis() models.VideoMetrics {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if stop != nil {
		e.acc.Touch(e.now())
	}
	return e.acc.Metrics()
}

// Metrics returns the current aggregate without stopping.
func (e *Extractor) Metrics() models.VideoMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.Metrics()
}

func (e *Extractor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

// Dropped counts ticks skipped because the frame could not be read.
func (e *Extractor) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Tick runs one analysis step. Read failures and panics inside the
// heuristics drop the tick.
func (e *Extractor) Tick(src FrameSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.dropped++
			e.log.WithField("panic", r).Debug("perception: frame dropped")
		}
	}()

	img, err := src.Frame()
	if err != nil || img == nil || img.Bounds().Empty() {
		e.dropped++
		if err != nil {
			e.log.WithError(err).Debug("perception: frame dropped")
		}
		return
	}

	e.surface = Downsample(e.surface, img, e.scale)
	e.acc.Add(e.analyze(e.surface))

	if e.prev == nil || !e.prev.sameSize(e.surface) {
		e.prev = e.surface.Clone()
	} else {
		copy(e.prev.Pix, e.surface.Pix)
	}
}

// analyze runs the heuristics for the current surface against the previous
// one. Caller holds e.mu.
func (e *Extractor) analyze(cur *Surface) FrameSample {
	s := FrameSample{Timestamp: e.now()}

	s.FaceDetected, _ = DetectFace(cur)
	if s.FaceDetected {
		looking, lum := EyeContact(cur, e.prevLum, e.hasPrevLum)
		s.EyeContact = looking
		e.prevLum, e.hasPrevLum = lum, true
	} else {
		e.hasPrevLum = false
	}

	prev := e.prev
	if prev != nil && !prev.sameSize(cur) {
		prev = nil
	}
	if prev != nil {
		s.MotionValid = true
		motion := EstimateMotion(cur, prev)
		s.FacialActivity, _ = Engagement(motion)
		s.HeadMotionDelta = models.Clamp01(RegionMotion(cur, prev, faceRegion(cur)) / TooMuch)
	}

	if e.body {
		p := AnalyzeBody(cur, prev)
		s.BodyAnalyzed = true
		s.BodyDetected = p.BodyDetected
		s.ShoulderOpenness = p.ShoulderOpenness
		s.IsGesturing = p.IsGesturing
		s.GestureMotion = p.GestureMotion
		s.PostureStability = p.PostureStability
	}
	return s
}
