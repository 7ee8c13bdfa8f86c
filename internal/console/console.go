// Package console holds the small terminal helpers shared by the
// interactive binaries.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	RobotEmoji         = "🤖"
	QuestionEmoji      = "❓"
	IncreasingTrend    = "📈"
	ansiGreen          = "\x1b[32m"
	ansiReset          = "\x1b[0m"
	defaultEnterPrompt = "Press enter to stop recording"
)

// Console reads lines from in and writes to out. Styling and emoji are
// only emitted when out is a terminal.
//
// A single goroutine owns in and queues complete lines; every read takes
// the oldest queued line. A read abandoned through its context never
// takes a line.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	fancy bool

	in        io.Reader
	startRead sync.Once
	inMu      sync.Mutex
	queue     []string
	eof       bool
	readErr   error
	wake      chan struct{}
}

func New(in io.Reader, out io.Writer) *Console {
	fancy := false
	if f, ok := out.(*os.File); ok {
		fancy = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Console{in: in, out: out, fancy: fancy, wake: make(chan struct{})}
}

// Stdio is a Console on the process's standard streams.
func Stdio() *Console {
	return New(os.Stdin, os.Stdout)
}

func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, a...)
}

func (c *Console) Printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

// Emoji returns e on a terminal and "" otherwise.
func (c *Console) Emoji(e string) string {
	if !c.fancy {
		return ""
	}
	return e
}

// Green colours s on a terminal.
func (c *Console) Green(s string) string {
	if !c.fancy {
		return s
	}
	return ansiGreen + s + ansiReset
}

// ReadLine prints prompt and returns the next line without its newline.
// It returns io.EOF when input is closed and nothing was read.
func (c *Console) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		c.Printf("%s", prompt)
	}
	return c.next(context.Background())
}

// WaitForEnter prints message and blocks until a line is entered. It
// returns io.EOF once input is closed.
func (c *Console) WaitForEnter(message string) error {
	if message != "" {
		c.Println(message)
	}
	_, err := c.next(context.Background())
	return err
}

// EnterPressed prints message and returns a channel that is closed once
// a line is entered or input ends. Cancelling ctx stops the wait without
// taking a line, and the channel then stays open. An empty message uses
// the recording prompt.
func (c *Console) EnterPressed(ctx context.Context, message string) <-chan struct{} {
	if message == "" {
		message = defaultEnterPrompt
	}
	c.Println(message)

	done := make(chan struct{})
	go func() {
		if _, err := c.next(ctx); err != nil && ctx.Err() != nil {
			return
		}
		close(done)
	}()
	return done
}

// DiscardPending drops lines typed ahead of the next read.
func (c *Console) DiscardPending() int {
	c.start()
	c.inMu.Lock()
	defer c.inMu.Unlock()
	n := len(c.queue)
	c.queue = nil
	return n
}

func (c *Console) next(ctx context.Context) (string, error) {
	c.start()
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.inMu.Lock()
		if len(c.queue) > 0 {
			line := c.queue[0]
			c.queue = c.queue[1:]
			c.inMu.Unlock()
			return line, nil
		}
		if c.eof {
			err := c.readErr
			c.inMu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return "", err
		}
		wake := c.wake
		c.inMu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Console) start() {
	c.startRead.Do(func() { go c.readLoop() })
}

func (c *Console) readLoop() {
	r := bufio.NewReader(c.in)
	for {
		line, err := r.ReadString('\n')

		c.inMu.Lock()
		if line != "" {
			c.queue = append(c.queue, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			c.eof = true
			if err != io.EOF {
				c.readErr = err
			}
		}
		close(c.wake)
		c.wake = make(chan struct{})
		c.inMu.Unlock()

		if err != nil {
			return
		}
	}
}

// Sink writes streamed fragments straight to the console. It satisfies
// chat.Sink.
func (c *Console) Sink() Sink { return Sink{c: c} }

type Sink struct{ c *Console }

func (s Sink) WriteFragment(_ context.Context, fragment string) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	_, err := io.WriteString(s.c.out, fragment)
	return err
}
