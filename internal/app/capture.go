package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "log/slog"

	cli "github.com/spf13/pflag"

	"chatty/internal/audio"
	"chatty/internal/console"
	"chatty/internal/ipc"
	"chatty/internal/notify"
	"chatty/internal/speech"
)

const (
	transcribeTimeout = 60 * time.Second

	duckFactor    = 0.3
	duckMinVolume = 10
	duckFade      = 300 * time.Millisecond
)

// RecordFlags are the flags of the recording binaries.
type RecordFlags struct {
	Device      string
	Jack        bool
	Channels    int
	ListDevices bool
	MaxDuration time.Duration
	Silence     time.Duration
	Duck        bool
	Beep        string
}

func (f *RecordFlags) Register(fs *cli.FlagSet) {
	fs.StringVarP(&f.Device, "device", "d", "", "The audio device to use")
	fs.BoolVarP(&f.Jack, "jack", "j", false, "Use the JACK host")
	fs.IntVar(&f.Channels, "channels", 0, "Channels to record (0 = up to two)")
	fs.BoolVar(&f.ListDevices, "list-devices", false, "Print the input devices and exit")
	fs.DurationVar(&f.MaxDuration, "max-duration", 0, "Stop recording after this long (0 = no limit)")
	fs.DurationVar(&f.Silence, "stop-on-silence", 0, "Stop recording after this much trailing silence (0 = off)")
	fs.BoolVar(&f.Duck, "duck", false, "Lower other audio streams while recording")
	fs.StringVar(&f.Beep, "beep", "", "MP3 played when recording starts")
}

// Capture records one utterance at a time. A recording ends on enter,
// on a stop control command, or on the recorder's own limits.
type Capture struct {
	rec     *audio.Recorder
	ducker  *audio.Ducker
	beep    string
	con     *console.Console
	signals *ipc.Signals
	logger  *log.Logger
}

func NewCapture(f RecordFlags, con *console.Console, signals *ipc.Signals, logger *log.Logger) (*Capture, error) {
	rec := audio.NewRecorder(audio.Options{
		Device:        f.Device,
		Jack:          f.Jack,
		Channels:      f.Channels,
		MaxDuration:   f.MaxDuration,
		StopOnSilence: f.Silence,
	}, logger)
	if err := rec.Init(); err != nil {
		return nil, err
	}

	c := &Capture{rec: rec, beep: f.Beep, con: con, signals: signals, logger: logger}
	if f.Duck {
		c.ducker = audio.NewDucker([]string{filepath.Base(os.Args[0])}, duckMinVolume)
	}
	return c, nil
}

func (c *Capture) Close() {
	c.rec.Close()
}

// ToFile records into a fresh temporary directory. cleanup removes it.
func (c *Capture) ToFile(ctx context.Context) (path string, cleanup func(), err error) {
	err = c.run(ctx, func(stop <-chan struct{}) error {
		path, err = c.rec.RecordToFile("", stop)
		return err
	})
	if err != nil {
		return "", func() {}, err
	}
	return path, func() { _ = os.RemoveAll(filepath.Dir(path)) }, nil
}

func (c *Capture) ToMemory(ctx context.Context) (wav []byte, err error) {
	err = c.run(ctx, func(stop <-chan struct{}) error {
		wav, err = c.rec.RecordToMemory(stop)
		return err
	})
	return wav, err
}

// Listen records one utterance to a temporary file and returns its
// trimmed transcript.
func (c *Capture) Listen(ctx context.Context, tr speech.Transcriber) (string, error) {
	path, cleanup, err := c.ToFile(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	c.con.Println("Transcribing")
	c.con.Println()

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	text, err := tr.Transcribe(ctx, f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (c *Capture) run(ctx context.Context, record func(stop <-chan struct{}) error) error {
	if c.beep != "" {
		if err := notify.Beep(c.beep); err != nil {
			c.logger.Warn("Failed to beep", "err", err)
		}
	}
	if c.ducker != nil {
		if err := c.ducker.Duck(ctx, duckFactor, duckFade); err != nil {
			c.logger.Warn("Failed to duck audio", "err", err)
		}
		defer func() {
			if err := c.ducker.Restore(context.WithoutCancel(ctx), duckFade); err != nil {
				c.logger.Warn("Failed to restore audio", "err", err)
			}
		}()
	}

	if n := c.con.DiscardPending(); n > 0 {
		c.logger.Debug("Discarded typed-ahead input", "lines", n)
	}

	// a recording ended by other means must leave the next line to the
	// caller
	enterCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop, release := c.signals.StopOr(c.con.EnterPressed(enterCtx, ""))
	defer release()
	return record(stop)
}

// ListDevices prints the name of every input device, one per line.
func ListDevices(con *console.Console) error {
	rec := audio.NewRecorder(audio.Options{}, nil)
	if err := rec.Init(); err != nil {
		return err
	}
	defer rec.Close()

	names, err := audio.ListInputDevices()
	if err != nil {
		return err
	}
	for _, name := range names {
		con.Println(name)
	}
	return nil
}

// ListenControl serves the control socket for signals. A binary keeps
// running without it.
func ListenControl(signals *ipc.Signals, logger *log.Logger) *ipc.Server {
	srv, err := ipc.Listen(ipc.SocketPath, func(msg ipc.ControlMessage) {
		if !signals.Handle(msg) {
			logger.Warn("Unknown command", "cmd", msg.Cmd)
		}
	}, logger)
	if err != nil {
		logger.Warn("Control socket disabled", "path", ipc.SocketPath, "err", err)
		return nil
	}
	logger.Debug("Control socket listening", "path", ipc.SocketPath)
	return srv
}
