package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/inkwell-ai/inkwell/pkg/events"
)

// WatermillEventBus routes typed events over any watermill publisher and
// subscriber pair. Execution and document events share one topic per
// family; the event type travels in message metadata.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	topic         string
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, topic string) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		topic:         topic,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(eb.topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, eb.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.topic, err)
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				msg.Ack()

				continue
			}

			if err := json.Unmarshal(msg.Payload, event); err != nil {
				msg.Nack()

				continue
			}

			if err := handler(msg.Context(), event); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}
	case events.NodeEnteredEvent:
		return &events.NodeEntered{}
	case events.NodeCompletedEvent:
		return &events.NodeCompleted{}
	case events.ExecutionSuspendedEvent:
		return &events.ExecutionSuspended{}
	case events.ExecutionResumedEvent:
		return &events.ExecutionResumed{}
	case events.ExecutionFinishedEvent:
		return &events.ExecutionFinished{}
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}
	case events.ExecutionAbandonedEvent:
		return &events.ExecutionAbandoned{}
	case events.DocumentStateChangedEvent:
		return &events.DocumentStateChanged{}
	case events.DocumentStaleEvent:
		return &events.DocumentStale{}
	case events.DocumentsResetEvent:
		return &events.DocumentsReset{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Close() error {
	if err := eb.publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}

	if err := eb.subscriber.Close(); err != nil {
		return fmt.Errorf("failed to close subscriber: %w", err)
	}

	return nil
}
