package main

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
)

// LocalSink is an in-process TransportSink built on a beep pipeline:
//
//	[MP3 Decode] -> [ResampleRatio] -> [Speaker]
//
// Playback rate is steered through the resampler's ratio: ratio 2.0 plays the
// source twice as fast (pitch shifts with it, which is the point of a scratch
// deck). Mostly useful for development without a remote player, but it is a
// full sink: position, duration and sample-accurate seeking all work.
type LocalSink struct {
	mu sync.Mutex

	logger *slog.Logger

	sr       beep.SampleRate
	streamer beep.StreamSeekCloser
	format   beep.Format
	resamp   *beep.Resampler
	rate     float64
	file     *os.File
}

// localSinkSampleRate is the speaker output rate. Sources at other rates go
// through the resampler anyway, so there is no quality reason to match.
const localSinkSampleRate = beep.SampleRate(44100)

// NewLocalSink initializes the speaker. If path is non-empty the file is
// loaded and playback starts immediately; otherwise the sink reports no media
// (GetDuration known=false) until Load is called.
func NewLocalSink(path string, logger *slog.Logger) (*LocalSink, error) {
	if err := speaker.Init(localSinkSampleRate, localSinkSampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	s := &LocalSink{
		logger: logger,
		sr:     localSinkSampleRate,
		rate:   1.0,
	}

	if path != "" {
		if err := s.Load(path); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Load opens an MP3 file, builds the pipeline and starts playback.
// Replaces any currently loaded media.
func (s *LocalSink) Load(path string) error {
	f, err := os.Open(ExpandPath(path))
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode media: %w", err)
	}

	speaker.Clear()

	s.mu.Lock()
	s.closeLocked()
	s.file = f
	s.streamer = streamer
	s.format = format

	// The base ratio converts the source rate to the speaker rate; the
	// playback-rate multiplier rides on top of it via SetRatio.
	s.resamp = beep.ResampleRatio(4, s.baseRatioLocked()*s.rate, streamer)
	s.mu.Unlock()

	speaker.Play(s.resamp)

	s.logger.Info("local sink loaded media",
		"path", path,
		"sample_rate", int(format.SampleRate),
		"duration_sec", format.SampleRate.D(streamer.Len()).Seconds())

	return nil
}

func (s *LocalSink) baseRatioLocked() float64 {
	if s.format.SampleRate == 0 {
		return 1.0
	}
	return float64(s.format.SampleRate) / float64(s.sr)
}

// SetRate sets the playback rate multiplier and returns the applied rate.
func (s *LocalSink) SetRate(rate float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rate = rate
	if s.resamp != nil {
		speaker.Lock()
		s.resamp.SetRatio(s.baseRatioLocked() * rate)
		speaker.Unlock()
	}
	return rate, nil
}

// SeekTo seeks to an absolute position (seconds) and returns the resulting
// position. The caller has already clamped to [0, duration]; we still clamp
// to the stream length against rounding.
func (s *LocalSink) SeekTo(seconds float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0, fmt.Errorf("no media loaded")
	}

	speaker.Lock()
	defer speaker.Unlock()

	target := s.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if target < 0 {
		target = 0
	}
	if max := s.streamer.Len() - 1; target > max {
		target = max
	}

	if err := s.streamer.Seek(target); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}

	return s.format.SampleRate.D(target).Seconds(), nil
}

// GetPosition returns the current playback position in seconds.
func (s *LocalSink) GetPosition() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0, fmt.Errorf("no media loaded")
	}

	speaker.Lock()
	defer speaker.Unlock()

	return s.format.SampleRate.D(s.streamer.Position()).Seconds(), nil
}

// GetDuration returns the loaded media duration; known=false without media.
func (s *LocalSink) GetDuration() (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		return 0, false, nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	return s.format.SampleRate.D(s.streamer.Len()).Seconds(), true, nil
}

// GetRate returns the current playback rate multiplier.
func (s *LocalSink) GetRate() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, nil
}

// Close stops playback and releases the decoder and file.
func (s *LocalSink) Close() error {
	speaker.Clear()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *LocalSink) closeLocked() {
	if s.streamer != nil {
		_ = s.streamer.Close()
		s.streamer = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.resamp = nil
}
