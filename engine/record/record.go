// Package record captures a bounded microphone take and hands it to the
// engine as the user loop.
package record

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/soundtoy/audiofile"
)

const (
	// DefaultSampleRate is the capture rate.
	DefaultSampleRate = 44100
	// DefaultChannels is the capture channel count.
	DefaultChannels = 2
	// MaxDuration is the longest take. Capture stops on its own at this
	// length.
	MaxDuration = 20 * time.Second
	// DefaultFileName is the take file name inside the default directory.
	DefaultFileName = "userRecording.wav"
)

var (
	// ErrAlreadyRecording is returned by Start during a take.
	ErrAlreadyRecording = errors.New("record: already recording")
	// ErrEmptyTake is returned by Stop when no frames were captured.
	ErrEmptyTake = errors.New("record: no audio captured")
)

// Capture delivers interleaved float32 frames to sink until Stop returns.
type Capture interface {
	Start(sink func(samples []float32)) error
	Stop() error
}

// Loader receives the finished take.
type Loader interface {
	LoadUserLoop(clip *audiofile.Clip) error
}

// Option configures a Session.
type Option func(*Session) error

// WithOutputPath sets where takes are written. A leading ~ is expanded.
func WithOutputPath(path string) Option {
	return func(s *Session) error {
		p, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("record: output path: %w", err)
		}
		s.path = p

		return nil
	}
}

// WithMaxDuration shortens the take ceiling. d must be in (0, MaxDuration].
func WithMaxDuration(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 || d > MaxDuration {
			return fmt.Errorf("record duration must be in (0, %v]: %v", MaxDuration, d)
		}
		s.maxDuration = d

		return nil
	}
}

// WithFormat sets the capture rate and channel count.
func WithFormat(sampleRate float64, channels int) Option {
	return func(s *Session) error {
		if sampleRate <= 0 {
			return fmt.Errorf("record sample rate must be > 0: %f", sampleRate)
		}
		if channels <= 0 {
			return fmt.Errorf("record channel count must be > 0: %d", channels)
		}
		s.sampleRate, s.channels = sampleRate, channels

		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) error {
		s.log = l

		return nil
	}
}

// WithStopHook registers fn to run after every finished take, including
// takes ended by the ceiling or a cancelled context.
func WithStopHook(fn func(path string, err error)) Option {
	return func(s *Session) error {
		s.onStop = fn

		return nil
	}
}

// DefaultOutputPath returns ~/.soundtoy/userRecording.wav.
func DefaultOutputPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".soundtoy", DefaultFileName), nil
}

// Session records one take at a time.
type Session struct {
	capture     Capture
	loader      Loader
	log         logrus.FieldLogger
	path        string
	maxDuration time.Duration
	sampleRate  float64
	channels    int
	onStop      func(path string, err error)

	mu        sync.Mutex
	recording bool
	halt      chan struct{}
	wg        sync.WaitGroup

	bufMu     sync.Mutex
	accepting bool
	buf       []float64
	full      chan struct{}
}

// New returns an idle session.
func New(capture Capture, loader Loader, opts ...Option) (*Session, error) {
	if capture == nil {
		return nil, fmt.Errorf("record capture must not be nil")
	}
	if loader == nil {
		return nil, fmt.Errorf("record loader must not be nil")
	}

	s := &Session{
		capture:     capture,
		loader:      loader,
		log:         logrus.StandardLogger(),
		maxDuration: MaxDuration,
		sampleRate:  DefaultSampleRate,
		channels:    DefaultChannels,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.path == "" {
		p, err := DefaultOutputPath()
		if err != nil {
			return nil, fmt.Errorf("record: default output path: %w", err)
		}
		s.path = p
	}

	return s, nil
}

// OutputPath returns where takes are written.
func (s *Session) OutputPath() string { return s.path }

// IsRecording reports whether a take is running.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recording
}

// Start begins a take. The take ends on Stop, when ctx is cancelled, or at
// the duration ceiling; the last two finish it exactly like Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return ErrAlreadyRecording
	}

	limit := int(s.maxDuration.Seconds()*s.sampleRate) * s.channels
	s.bufMu.Lock()
	if cap(s.buf) < limit {
		s.buf = make([]float64, 0, limit)
	}
	s.buf = s.buf[:0]
	s.full = make(chan struct{}, 1)
	s.accepting = true
	full := s.full
	s.bufMu.Unlock()

	s.recording = true
	if err := s.capture.Start(s.write); err != nil {
		s.recording = false
		s.bufMu.Lock()
		s.accepting = false
		s.bufMu.Unlock()
		s.log.WithError(err).Error("capture failed to start")

		return fmt.Errorf("record: start capture: %w", err)
	}

	halt := make(chan struct{})
	s.halt = halt
	s.wg.Add(1)
	go s.watch(ctx, halt, full)

	s.log.WithFields(logrus.Fields{
		"path":        s.path,
		"max_seconds": s.maxDuration.Seconds(),
	}).Info("recording started")

	return nil
}

// watch ends the take when the context is done or the buffer fills.
func (s *Session) watch(ctx context.Context, halt chan struct{}, full <-chan struct{}) {
	defer s.wg.Done()

	select {
	case <-halt:
		return
	case <-ctx.Done():
	case <-full:
	}
	if err := s.stop(halt); err != nil {
		s.log.WithError(err).Warn("automatic stop failed")
	}
}

// write is the capture sink.
func (s *Session) write(samples []float32) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	if !s.accepting {
		return
	}
	room := cap(s.buf) - len(s.buf)
	n := min(room, len(samples))
	for _, v := range samples[:n] {
		s.buf = append(s.buf, float64(v))
	}
	if n < len(samples) || len(s.buf) == cap(s.buf) {
		s.accepting = false
		select {
		case s.full <- struct{}{}:
		default:
		}
	}
}

// Stop ends the take, writes it to the output path and hands it to the
// loader. Without a running take it does nothing.
func (s *Session) Stop() error {
	return s.stop(nil)
}

// stop ends the take identified by halt, or any take when halt is nil.
func (s *Session) stop(halt chan struct{}) error {
	s.mu.Lock()
	if !s.recording || (halt != nil && s.halt != halt) {
		s.mu.Unlock()
		return nil
	}
	s.recording = false
	close(s.halt)
	s.halt = nil

	stopErr := s.capture.Stop()

	s.bufMu.Lock()
	s.accepting = false
	samples := make([]float64, len(s.buf)-len(s.buf)%s.channels)
	copy(samples, s.buf)
	s.bufMu.Unlock()
	s.mu.Unlock()

	err := s.finish(samples)
	if stopErr != nil {
		err = errors.Join(fmt.Errorf("record: stop capture: %w", stopErr), err)
	}
	if s.onStop != nil {
		s.onStop(s.path, err)
	}

	return err
}

func (s *Session) finish(samples []float64) error {
	if len(samples) == 0 {
		s.log.Warn("recording stopped with no audio")
		return ErrEmptyTake
	}

	clip, err := audiofile.NewClip(samples, s.channels, s.sampleRate)
	if err != nil {
		return err
	}
	if err := audiofile.SaveWAV(s.path, clip); err != nil {
		return fmt.Errorf("record: save %s: %w", s.path, err)
	}
	if err := s.loader.LoadUserLoop(clip); err != nil {
		return fmt.Errorf("record: hand over take: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"path":    s.path,
		"seconds": clip.Duration().Seconds(),
	}).Info("recording saved")

	return nil
}

// Wait blocks until the watcher of the last take has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}
