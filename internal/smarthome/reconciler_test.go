package smarthome

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"chatty/internal/chat"
	"chatty/internal/mqtt"
)

type scriptedModel struct {
	reply    string
	err      error
	prompts  []string
	fragment []string
}

func (m *scriptedModel) Complete(_ context.Context, req chat.Request) (chat.Completion, error) {
	m.prompts = append(m.prompts, req.Messages[len(req.Messages)-1].Content)
	if m.err != nil {
		return chat.Completion{}, m.err
	}
	return chat.Completion{Message: chat.Message{Role: chat.RoleAssistant, Content: m.reply}}, nil
}

func (m *scriptedModel) Stream(_ context.Context, req chat.Request, fn func(chat.Delta) error) error {
	m.prompts = append(m.prompts, req.Messages[len(req.Messages)-1].Content)
	if m.err != nil {
		return m.err
	}
	for _, f := range m.fragment {
		if err := fn(chat.Delta{Content: f}); err != nil {
			return err
		}
	}
	return nil
}

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

type fakePublisher struct {
	sent   []published
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, published{topic, qos, retain, string(payload)})
	return nil
}

func (p *fakePublisher) on(topic string) []published {
	var out []published
	for _, s := range p.sent {
		if s.topic == topic {
			out = append(out, s)
		}
	}
	return out
}

func newTestReconciler(t *testing.T, model chat.Completer, pub Publisher, opts Options) *Reconciler {
	t.Helper()
	opts.SessionOptions = append(opts.SessionOptions, chat.WithTitles(false))
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Now = func() time.Time { return time.Date(2023, 4, 1, 9, 30, 0, 0, time.UTC) }
	r, err := NewReconciler(model, pub, State{}, opts)
	if err != nil {
		t.Fatalf("NewReconciler() error: %v", err)
	}
	return r
}

const bedroomReply = `{"lights":{"bedroom":{"state":"On","brightness":255,"color":{"Temperature":{"color_temperature":"Neutral"}}}}} MESSAGE: Bedroom light is on.`

func TestTurn_BedroomScenario(t *testing.T) {
	model := &scriptedModel{reply: bedroomReply}
	pub := &fakePublisher{}
	r := newTestReconciler(t, model, pub, Options{})

	res, err := r.Turn(context.Background(), "turn on the bedroom light")
	if err != nil {
		t.Fatalf("Turn() error: %v", err)
	}

	if !strings.Contains(model.prompts[0], "USER_REQUEST:\nturn on the bedroom light") {
		t.Errorf("prompt missing request:\n%s", model.prompts[0])
	}
	if !strings.Contains(model.prompts[0], `"state": "Off"`) {
		t.Errorf("prompt should carry the previous (off) state:\n%s", model.prompts[0])
	}

	if !res.StateUpdated || res.StateErr != nil {
		t.Fatalf("StateUpdated = %v, StateErr = %v", res.StateUpdated, res.StateErr)
	}
	if r.State().Lights.Bedroom.State != On {
		t.Errorf("bedroom state = %q, want On", r.State().Lights.Bedroom.State)
	}
	if res.Message != "Bedroom light is on." {
		t.Errorf("Message = %q", res.Message)
	}

	states := pub.on(StateTopic)
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(states))
	}
	if !states[0].retain {
		t.Error("state must be published retained")
	}
	got, err := ParseState([]byte(states[0].payload))
	if err != nil {
		t.Fatalf("published state does not parse: %v", err)
	}
	want, _ := ExtractState(bedroomReply)
	if got.Lights != want.Lights {
		t.Errorf("published lights = %+v, want %+v", got.Lights, want.Lights)
	}

	speech := pub.on(SpeechTopic)
	if len(speech) != 1 || speech[0].payload != "Bedroom light is on." || speech[0].retain {
		t.Errorf("speech publishes = %+v", speech)
	}
	if r.Phase() != Idle {
		t.Errorf("Phase() = %v, want idle", r.Phase())
	}
}

func TestTurn_Mute(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestReconciler(t, &scriptedModel{reply: bedroomReply}, pub, Options{Mute: true})

	if _, err := r.Turn(context.Background(), "lights"); err != nil {
		t.Fatal(err)
	}
	if n := len(pub.on(SpeechTopic)); n != 0 {
		t.Errorf("speech publishes = %d, want 0 when muted", n)
	}
}

func TestTurn_MalformedStateIsRecoverable(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestReconciler(t, &scriptedModel{reply: `{"lights": oops} MESSAGE: Sorry.`}, pub, Options{})
	before := r.State()

	res, err := r.Turn(context.Background(), "lights")
	if err != nil {
		t.Fatalf("Turn() error = %v, want recoverable", err)
	}
	var malformed *MalformedStateError
	if !errors.As(res.StateErr, &malformed) {
		t.Errorf("StateErr = %v, want *MalformedStateError", res.StateErr)
	}
	if r.State().Lights != before.Lights {
		t.Error("state changed after malformed reply")
	}
	if len(pub.on(StateTopic)) != 0 {
		t.Error("malformed state must not be published")
	}
	if speech := pub.on(SpeechTopic); len(speech) != 1 || speech[0].payload != "Sorry." {
		t.Errorf("speech = %+v, want the message", speech)
	}
}

func TestTurn_PublishFailureKeepsPreviousState(t *testing.T) {
	pub := &fakePublisher{failOn: StateTopic}
	r := newTestReconciler(t, &scriptedModel{reply: bedroomReply}, pub, Options{})

	res, err := r.Turn(context.Background(), "lights")
	if err == nil {
		t.Fatal("expected publish error")
	}
	if res.FailedIn != Publishing {
		t.Errorf("FailedIn = %v, want publishing", res.FailedIn)
	}
	if r.State().Lights.Bedroom.State != Off {
		t.Error("state committed before the retained publish succeeded")
	}
	if r.Phase() != Idle {
		t.Errorf("Phase() = %v, want idle", r.Phase())
	}
}

func TestTurn_ModelFailure(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestReconciler(t, &scriptedModel{err: errors.New("timeout")}, pub, Options{})

	res, err := r.Turn(context.Background(), "lights")
	var apiErr *chat.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *chat.APIError", err)
	}
	if res.FailedIn != AwaitingModel {
		t.Errorf("FailedIn = %v, want awaiting_model", res.FailedIn)
	}
	if len(pub.sent) != 0 {
		t.Errorf("published %d messages after model failure", len(pub.sent))
	}
}

func TestTurn_StreamingSinkAndSave(t *testing.T) {
	model := &scriptedModel{fragment: []string{`{"lights":{}}`, " MESSAGE:", " ok"}}
	pub := &fakePublisher{}
	var streamed []string
	sink := chat.SinkFunc(func(_ context.Context, f string) error {
		streamed = append(streamed, f)
		return nil
	})
	dir := t.TempDir()
	r := newTestReconciler(t, model, pub, Options{Streaming: true, Sink: sink, SaveDir: dir})

	res, err := r.Turn(context.Background(), "status")
	if err != nil {
		t.Fatalf("Turn() error: %v", err)
	}
	if len(streamed) != 3 {
		t.Errorf("sink got %d fragments, want 3", len(streamed))
	}
	if res.Message != "ok" {
		t.Errorf("Message = %q, want ok", res.Message)
	}
	if res.SavedPath == "" || !strings.HasPrefix(res.SavedPath, dir) {
		t.Errorf("SavedPath = %q, want file in %s", res.SavedPath, dir)
	}
}

func TestDrain_AdoptsLatestOnly(t *testing.T) {
	r := newTestReconciler(t, &scriptedModel{reply: "MESSAGE: ok"}, &fakePublisher{}, Options{})

	first := `{"lights":{"hallway":{"state":"On","brightness":1,"color":{"Temperature":{"color_temperature":"warm"}}}}}`
	second := `{"lights":{"hallway":{"state":"On","brightness":2,"color":{"Temperature":{"color_temperature":"warm"}}}}}`
	queue := make(chan mqtt.Message, 4)
	queue <- mqtt.Message{Topic: StateTopic, Payload: []byte(first)}
	queue <- mqtt.Message{Topic: "something/else", Payload: []byte("x")}
	queue <- mqtt.Message{Topic: StateTopic, Payload: []byte(second)}

	if !r.Drain(queue) {
		t.Fatal("Drain() = false, want true")
	}
	if got := r.State().Lights.Hallway.Brightness; got != 2 {
		t.Errorf("hallway brightness = %d, want 2 (latest update)", got)
	}
	if len(queue) != 0 {
		t.Errorf("queue still holds %d messages", len(queue))
	}
}

func TestDrain_MalformedExternalStateIgnored(t *testing.T) {
	r := newTestReconciler(t, &scriptedModel{}, &fakePublisher{}, Options{})
	queue := make(chan mqtt.Message, 1)
	queue <- mqtt.Message{Topic: StateTopic, Payload: []byte("garbage")}

	if r.Drain(queue) {
		t.Error("Drain() = true for malformed payload")
	}
	if r.State().Lights != DefaultState().Lights {
		t.Error("state changed after malformed external update")
	}
}

func TestDrain_RaceExternalWins(t *testing.T) {
	pub := &fakePublisher{}
	r := newTestReconciler(t, &scriptedModel{reply: bedroomReply}, pub, Options{})
	if _, err := r.Turn(context.Background(), "on"); err != nil {
		t.Fatal(err)
	}

	external := `{"lights":{"bedroom":{"state":"Off","brightness":0,"color":{"Temperature":{"color_temperature":"neutral"}}}}}`
	queue := make(chan mqtt.Message, 1)
	queue <- mqtt.Message{Topic: StateTopic, Payload: []byte(external)}
	r.Drain(queue)

	if r.State().Lights.Bedroom.State != Off {
		t.Error("external update arriving after the turn should replace the model's state")
	}
}

func TestReset_KeepsState(t *testing.T) {
	r := newTestReconciler(t, &scriptedModel{reply: bedroomReply}, &fakePublisher{}, Options{})
	if _, err := r.Turn(context.Background(), "on"); err != nil {
		t.Fatal(err)
	}
	old := r.Session()
	r.Reset()

	if r.Session() == old {
		t.Error("Reset() should start a new session")
	}
	if r.Session().Len() != 1 {
		t.Errorf("new session length = %d, want 1", r.Session().Len())
	}
	if r.State().Lights.Bedroom.State != On {
		t.Error("Reset() must not touch the state")
	}
}

func TestPhase_String(t *testing.T) {
	if AwaitingModel.String() != "awaiting_model" {
		t.Errorf("AwaitingModel.String() = %q", AwaitingModel.String())
	}
	if Phase(42).String() != "phase(42)" {
		t.Errorf("Phase(42).String() = %q", Phase(42).String())
	}
}
