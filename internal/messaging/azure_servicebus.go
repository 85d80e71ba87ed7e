package messaging

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/pxr/services/ctoken/config"
)

// MessageHandler processes one received submission message. Returning an
// error abandons the message so the bus redelivers it.
type MessageHandler func(ctx context.Context, msg *azservicebus.ReceivedMessage) error

// AzureServiceBus consumes Local-CToken submission messages from a queue.
type AzureServiceBus struct {
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	queueName string
}

// NewAzureServiceBus creates a new Service Bus consumer for the configured
// submission queue.
func NewAzureServiceBus(cfg config.AzureConfig) (*AzureServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus receiver")
	}

	return &AzureServiceBus{
		client:    client,
		receiver:  receiver,
		queueName: cfg.QueueName,
	}, nil
}

// ProcessMessages receives and handles messages until ctx is cancelled.
// Handled messages are completed; failed ones are abandoned for redelivery.
func (b *AzureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	for {
		messages, err := b.receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, msg := range messages {
			if err := handler(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process message")
				if abandonErr := b.receiver.AbandonMessage(ctx, msg, nil); abandonErr != nil {
					log.Error().Err(abandonErr).Str("message_id", msg.MessageID).Msg("Failed to abandon message")
				}
				continue
			}
			if err := b.receiver.CompleteMessage(ctx, msg, nil); err != nil {
				log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to complete message")
			}
		}
	}
}

// Close closes the receiver and the underlying client.
func (b *AzureServiceBus) Close() error {
	if b.receiver != nil {
		if err := b.receiver.Close(context.Background()); err != nil {
			return err
		}
	}
	if b.client != nil {
		return b.client.Close(context.Background())
	}
	return nil
}
