package audio

import (
	"math"
	"sync/atomic"
	"time"
)

const silenceThreshRMS = 0.015

// levelMeter records when the input was last above the silence
// threshold. It is written from the audio callback and read by the
// recording loop.
type levelMeter struct {
	heard    atomic.Bool
	lastLoud atomic.Int64
}

func (l *levelMeter) observe(samples []int16) {
	if frameRMS(samples) > silenceThreshRMS {
		l.heard.Store(true)
		l.lastLoud.Store(time.Now().UnixNano())
	}
}

// silentFor reports whether speech was heard and has been followed by at
// least d of silence.
func (l *levelMeter) silentFor(d time.Duration, now time.Time) bool {
	if !l.heard.Load() {
		return false
	}
	return now.Sub(time.Unix(0, l.lastLoud.Load())) >= d
}

func frameRMS(f []int16) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		v := float64(x) / math.MaxInt16
		s += v * v
	}
	return math.Sqrt(s / float64(len(f)))
}

type stopReason int

const (
	stopRequested stopReason = iota
	stopMaxDuration
	stopSilence
)

func (r stopReason) String() string {
	switch r {
	case stopMaxDuration:
		return "max duration"
	case stopSilence:
		return "silence"
	}
	return "requested"
}

const pollInterval = 50 * time.Millisecond

// waitForStop blocks until stop fires, maxDur elapses or trailing silence
// exceeds silence. Zero durations disable the matching condition.
func waitForStop(stop <-chan struct{}, maxDur, silence time.Duration, level *levelMeter) stopReason {
	var deadline <-chan time.Time
	if maxDur > 0 {
		t := time.NewTimer(maxDur)
		defer t.Stop()
		deadline = t.C
	}

	var poll <-chan time.Time
	if silence > 0 {
		t := time.NewTicker(pollInterval)
		defer t.Stop()
		poll = t.C
	}

	for {
		select {
		case <-stop:
			return stopRequested
		case <-deadline:
			return stopMaxDuration
		case now := <-poll:
			if level.silentFor(silence, now) {
				return stopSilence
			}
		}
	}
}
