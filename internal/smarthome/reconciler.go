package smarthome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatty/internal/chat"
	"chatty/internal/mqtt"
)

// Phase is where a turn currently is.
type Phase int

const (
	Idle Phase = iota
	Composing
	AwaitingModel
	Parsing
	Publishing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Composing:
		return "composing"
	case AwaitingModel:
		return "awaiting_model"
	case Parsing:
		return "parsing"
	case Publishing:
		return "publishing"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Options configures a Reconciler.
type Options struct {
	StateTopic  string
	SpeechTopic string

	// Streaming forwards fragments to Sink while the reply arrives.
	Streaming bool
	Sink      chat.Sink

	// Mute skips the speech publish.
	Mute bool

	// SaveDir receives the conversation after every turn. Empty disables
	// saving.
	SaveDir string

	SessionOptions []chat.Option
	Now            func() time.Time
	Logger         *slog.Logger
}

// TurnResult describes one completed turn.
type TurnResult struct {
	Prompt   string
	Response string
	Message  string

	State        State
	StateUpdated bool
	// StateErr is set when the reply carried a state that did not parse.
	StateErr error

	SavedPath string

	// FailedIn is the phase a failed turn stopped in.
	FailedIn Phase
}

// Reconciler owns the smart-home state and the conversation about it.
// It is driven by a single loop: every write to the state, from the
// model or from other MQTT publishers, goes through Turn, Observe or
// Drain.
//
// An external update that arrives after a turn published its state but
// before the next Drain replaces the model's update. That is accepted
// last-writer-wins behaviour.
type Reconciler struct {
	completer    chat.Completer
	publisher    Publisher
	systemPrompt string
	opts         Options

	state   State
	session *chat.Session
	phase   Phase
	logger  *slog.Logger
}

// NewReconciler starts with initial as the known state and a fresh
// conversation seeded with SystemPrompt.
func NewReconciler(c chat.Completer, p Publisher, initial State, opts Options) (*Reconciler, error) {
	prompt, err := SystemPrompt()
	if err != nil {
		return nil, err
	}
	if opts.StateTopic == "" {
		opts.StateTopic = StateTopic
	}
	if opts.SpeechTopic == "" {
		opts.SpeechTopic = SpeechTopic
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if initial.IsZero() {
		initial = DefaultState()
	}

	r := &Reconciler{
		completer:    c,
		publisher:    p,
		systemPrompt: prompt,
		opts:         opts,
		state:        initial,
		logger:       logger,
	}
	r.Reset()
	return r, nil
}

// SystemPrompt returns the prompt every conversation starts with.
func (r *Reconciler) SystemPrompt() string { return r.systemPrompt }

// State returns the last committed state.
func (r *Reconciler) State() State { return r.state }

// Session returns the current conversation.
func (r *Reconciler) Session() *chat.Session { return r.session }

// Phase returns the current turn phase.
func (r *Reconciler) Phase() Phase { return r.phase }

// Reset replaces the conversation with a fresh one. The state is kept.
func (r *Reconciler) Reset() {
	opts := append([]chat.Option{chat.WithLogger(r.logger)}, r.opts.SessionOptions...)
	r.session = chat.NewSession(r.systemPrompt, opts...)
}

// Observe adopts a state published by someone else.
func (r *Reconciler) Observe(payload []byte) error {
	s, err := ParseState(payload)
	if err != nil {
		return err
	}
	r.state = s
	return nil
}

// Drain empties the queue without blocking and adopts the most recent
// state-topic payload. Other topics are discarded. It reports whether
// the state changed.
func (r *Reconciler) Drain(queue <-chan mqtt.Message) bool {
	var latest []byte
	for _, msg := range mqtt.Drain(queue) {
		if msg.Topic != r.opts.StateTopic {
			r.logger.Debug("discarding message while draining", "topic", msg.Topic)
			continue
		}
		latest = msg.Payload
	}
	if latest == nil {
		return false
	}
	if err := r.Observe(latest); err != nil {
		r.logger.Warn("ignoring malformed external state", "error", err)
		return false
	}
	r.logger.Debug("adopted external state")
	return true
}

// Turn sends request with the current state to the model, publishes the
// state it answers with and speaks its message. On error the phase goes
// back to Idle and no partial state is committed.
func (r *Reconciler) Turn(ctx context.Context, request string) (res TurnResult, err error) {
	defer func() {
		if err != nil {
			res.FailedIn = r.phase
		}
		r.phase = Idle
	}()

	r.phase = Composing
	prompt, err := ComposePrompt(r.state, r.opts.Now(), request)
	if err != nil {
		return res, err
	}
	res.Prompt = prompt

	r.phase = AwaitingModel
	var reply string
	if r.opts.Streaming {
		reply, err = r.session.NextStreaming(ctx, r.completer, prompt, r.opts.Sink)
	} else {
		reply, err = r.session.Next(ctx, r.completer, prompt)
	}
	if err != nil {
		return res, err
	}
	res.Response = reply

	r.phase = Parsing
	next, err := ExtractState(reply)
	var malformed *MalformedStateError
	switch {
	case errors.As(err, &malformed):
		r.logger.Warn("model replied with malformed state", "error", err)
		res.StateErr = err
	case err != nil:
		return res, err
	}
	res.Message = ExtractUserMessage(reply)

	r.phase = Publishing
	if next != nil {
		if err := PublishState(ctx, r.publisher, r.opts.StateTopic, *next); err != nil {
			return res, err
		}
		r.state = *next
		res.StateUpdated = true
	}
	res.State = r.state

	if !r.opts.Mute {
		if err := PublishSpeech(ctx, r.publisher, r.opts.SpeechTopic, res.Message); err != nil {
			return res, err
		}
	}

	if r.opts.SaveDir != "" {
		path, err := r.session.Persist(r.opts.SaveDir)
		if err != nil {
			return res, fmt.Errorf("save conversation: %w", err)
		}
		res.SavedPath = path
	}
	return res, nil
}
