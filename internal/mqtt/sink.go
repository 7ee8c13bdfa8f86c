package mqtt

import "context"

// Publisher is the publishing half of Client.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// FragmentSink forwards streamed response fragments to a topic at QoS 0,
// not retained. It satisfies chat.Sink.
type FragmentSink struct {
	Publisher Publisher
	Topic     string
}

func (s FragmentSink) WriteFragment(ctx context.Context, fragment string) error {
	return s.Publisher.Publish(ctx, s.Topic, 0, false, []byte(fragment))
}
