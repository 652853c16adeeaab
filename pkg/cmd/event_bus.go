package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/inkwell-ai/inkwell/pkg/channels/gochannel"
	"github.com/inkwell-ai/inkwell/pkg/channels/kafka"
	"github.com/inkwell-ai/inkwell/pkg/eventbus"
)

// NewEventBus creates an event bus on the requested transport. gochannel is
// the in-process default; kafka reads its brokers from the environment.
func NewEventBus(provider, serviceName, topic string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, topic)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, topic)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
