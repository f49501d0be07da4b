package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/eclipse/paho.golang/paho"
	"github.com/lefinal/rally-server/event"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// Stub mocks Portal. Logger always returns a nop logger.
type Stub struct {
	mock.Mock
}

func (s *Stub) Subscribe(ctx context.Context, topic Topic) *Newsletter[any] {
	return s.Called(ctx, topic).Get(0).(*Newsletter[any])
}

func (s *Stub) Publish(ctx context.Context, topic Topic, payload interface{}) {
	s.Called(ctx, topic, payload)
}

func (s *Stub) Logger() *zap.Logger {
	return zap.NewNop()
}

// ForwardingNewsletter returns a Newsletter that emits the events read from
// forward with their payloads encoded as JSON publish payloads, the way they
// arrive from the broker. It is closed when ctx is done, forward is closed or
// it is unsubscribed.
func ForwardingNewsletter(ctx context.Context, forward <-chan event.Event[any]) *Newsletter[any] {
	lifetime, cancel := context.WithCancel(ctx)
	receive := make(chan event.Event[any])
	go func() {
		defer close(receive)
		for {
			var e event.Event[any]
			var more bool
			select {
			case <-lifetime.Done():
				return
			case e, more = <-forward:
				if !more {
					return
				}
			}
			raw, err := json.Marshal(e.Payload)
			if err != nil {
				panic(fmt.Sprintf("encode forwarded payload: %v", err))
			}
			publish := paho.Publish{}
			if e.Publish != nil {
				publish = *e.Publish
			}
			publish.Payload = raw
			select {
			case <-lifetime.Done():
				return
			case receive <- event.Event[any]{Publish: &publish}:
			}
		}
	}()
	return &Newsletter[any]{
		unregisterFn: cancel,
		Receive:      receive,
	}
}
