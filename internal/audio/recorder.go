// Package audio records microphone input to WAV through PortAudio.
package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	framesPerBuffer = 1024

	// defaultChannels caps the channel count when none is requested.
	// Virtual ALSA and Pulse devices report 32 or more input channels.
	defaultChannels = 2

	// RecordingFileName is the name of the WAV file inside the recording
	// directory.
	RecordingFileName = "recorded.wav"
)

// DeviceError reports a failure to find, open or drive the input device.
// It is fatal for the recording in progress.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Options selects the input device and the automatic stop conditions.
//
// The WAV is written at the device's default sample rate as 16-bit PCM;
// PortAudio converts from the device's native sample format.
type Options struct {
	// Device is the exact device name. Empty selects the default input.
	Device string
	// Jack selects the device from the JACK host API.
	Jack bool
	// Channels is the number of channels to record, never more than the
	// device has. Zero records up to two.
	Channels int

	MaxDuration time.Duration
	// StopOnSilence ends the recording after this much trailing silence
	// once speech was heard.
	StopOnSilence time.Duration
}

type Recorder struct {
	opts   Options
	logger *slog.Logger
}

func NewRecorder(opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{opts: opts, logger: logger}
}

func (r *Recorder) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return &DeviceError{Op: "initialize", Err: err}
	}
	return nil
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordToFile records into dir/recorded.wav and returns the path. An
// empty dir creates a fresh temporary directory the caller should remove.
func (r *Recorder) RecordToFile(dir string, stop <-chan struct{}) (string, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "chatty_audio_tmp_dir")
		if err != nil {
			return "", fmt.Errorf("create recording dir: %w", err)
		}
		dir = tmp
	}
	path := filepath.Join(dir, RecordingFileName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recording: %w", err)
	}
	if err := r.record(f, stop); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close recording: %w", err)
	}
	return path, nil
}

// RecordToMemory records a complete WAV file into memory.
func (r *Recorder) RecordToMemory(stop <-chan struct{}) ([]byte, error) {
	var buf memBuffer
	if err := r.record(&buf, stop); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Recorder) record(ws io.WriteSeeker, stop <-chan struct{}) error {
	dev, err := r.inputDevice()
	if err != nil {
		return err
	}
	r.logger.Debug("input device", "name", dev.Name, "rate", dev.DefaultSampleRate, "channels", dev.MaxInputChannels)

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = inputChannels(r.opts.Channels, dev.MaxInputChannels)
	params.SampleRate = dev.DefaultSampleRate
	params.FramesPerBuffer = framesPerBuffer

	sink := newWAVSink(ws, int(params.SampleRate), params.Input.Channels)
	var level levelMeter

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		level.observe(in)
		sink.write(in)
	})
	if err != nil {
		return &DeviceError{Op: "open stream", Err: err}
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return &DeviceError{Op: "start stream", Err: err}
	}
	r.logger.Info("recording started")

	reason := waitForStop(stop, r.opts.MaxDuration, r.opts.StopOnSilence, &level)

	if err := stream.Stop(); err != nil {
		r.logger.Warn("failed to stop stream", "error", err)
	}
	r.logger.Info("recording stopped", "reason", reason.String())
	if n := sink.dropped.Load(); n > 0 {
		r.logger.Debug("audio buffers dropped on contention", "count", n)
	}

	return sink.finalize()
}

func (r *Recorder) inputDevice() (*portaudio.DeviceInfo, error) {
	var (
		devices []*portaudio.DeviceInfo
		def     *portaudio.DeviceInfo
	)
	if r.opts.Jack {
		api, err := portaudio.HostApi(portaudio.JACK)
		if err != nil {
			return nil, &DeviceError{Op: "jack host", Err: err}
		}
		devices, def = api.Devices, api.DefaultInputDevice
	} else {
		var err error
		if devices, err = portaudio.Devices(); err != nil {
			return nil, &DeviceError{Op: "list devices", Err: err}
		}
		if r.opts.Device == "" {
			if def, err = portaudio.DefaultInputDevice(); err != nil {
				return nil, &DeviceError{Op: "default input", Err: err}
			}
		}
	}

	if r.opts.Device == "" {
		if def == nil || def.MaxInputChannels < 1 {
			return nil, &DeviceError{Op: "default input", Err: fmt.Errorf("no default input device")}
		}
		return def, nil
	}
	for _, d := range devices {
		if d.Name == r.opts.Device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, &DeviceError{Op: "find device", Err: fmt.Errorf("no input device named %q", r.opts.Device)}
}

func inputChannels(requested, deviceMax int) int {
	if requested <= 0 {
		requested = defaultChannels
	}
	return max(min(requested, deviceMax), 1)
}

// ListInputDevices returns the names of every device that can record.
func ListInputDevices() ([]string, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &DeviceError{Op: "list devices", Err: err}
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}
