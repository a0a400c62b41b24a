package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront-shipping/internal/domain"
	pkgkafka "github.com/utafrali/storefront-shipping/pkg/kafka"
	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// TopicShippingConfirmed receives one event per committed shipping session.
var TopicShippingConfirmed = pkgkafka.Topic("shipping", "confirmed")

// Aggregate type constant.
const AggregateTypeShippingSession = "shipping_session"

// Source identifier for events originating from the shipping service.
const SourceShippingService = "shipping-service"

// publisher is the subset of pkg/kafka.Producer used here.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes shipping domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the shipping service.
func NewProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishShippingConfirmed hands confirmed shipping info to the checkout flow.
func (p *Producer) PublishShippingConfirmed(ctx context.Context, info *domain.ConfirmedShippingInfo) error {
	event, err := pkgkafka.NewEvent(TopicShippingConfirmed, info.SessionID, AggregateTypeShippingSession, SourceShippingService, info)
	if err != nil {
		return fmt.Errorf("create shipping.confirmed event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if info.CheckoutID != "" {
		event.WithMetadata("checkout_id", info.CheckoutID)
	}

	if err := p.kafka.Publish(ctx, TopicShippingConfirmed, event); err != nil {
		return fmt.Errorf("publish shipping.confirmed event: %w", err)
	}

	p.logger.InfoContext(ctx, "published shipping.confirmed event",
		slog.String("session_id", info.SessionID),
		slog.String("event_id", event.EventID),
	)
	return nil
}
