package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// RedemptionEvent is published by the operator backend when a prize code
// is scanned and honored at the counter.
type RedemptionEvent struct {
	Code       string    `json:"uniqueCode" mapstructure:"uniqueCode"`
	AccountID  string    `json:"accountId" mapstructure:"accountId"`
	RedeemedAt time.Time `json:"redeemedAt" mapstructure:"redeemedAt"`
}

// RedemptionMarker applies a redemption event to storage
type RedemptionMarker interface {
	MarkRedeemed(ctx context.Context, code string) error
}

// Consumer consumes redemption events and marks the matching prize codes
// as redeemed. Marking is idempotent, so redelivered messages are harmless.
type Consumer struct {
	reader *kafka.Reader
	marker RedemptionMarker
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Logger        zerolog.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config ConsumerConfig, marker RedemptionMarker) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &Consumer{
		reader: reader,
		marker: marker,
		logger: config.Logger.With().Str("component", "kafka-consumer").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins consuming messages
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	c.logger.Info().Msg("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info().Msg("Stopping Kafka consumer...")
	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Error closing Kafka reader")
		return err
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return nil
}

// consume is the main consumer loop
func (c *Consumer) consume() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			msg, err := c.reader.FetchMessage(c.ctx)
			if err != nil {
				if err == context.Canceled {
					return
				}
				c.logger.Error().Err(err).Msg("Error fetching message from Kafka")
				time.Sleep(time.Second)
				continue
			}

			if err := c.handleMessage(msg); err != nil {
				c.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error handling message")
			}

			if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("Error committing message")
			}
		}
	}
}

// handleMessage processes a single Kafka message
func (c *Consumer) handleMessage(msg kafka.Message) error {
	event, err := DecodeRedemptionEvent(msg.Value)
	if err != nil {
		return err
	}

	if event.Code == "" {
		c.logger.Warn().
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Msg("Redemption event without code, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.marker.MarkRedeemed(ctx, event.Code); err != nil {
		return err
	}

	c.logger.Info().
		Str("code", event.Code).
		Str("account_id", event.AccountID).
		Msg("Prize redemption applied")
	return nil
}

// DecodeRedemptionEvent decodes a redemption event payload. Decoding is
// deliberately tolerant of extra fields and loosely typed values sent by
// operator tooling.
func DecodeRedemptionEvent(data []byte) (*RedemptionEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var event RedemptionEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &event,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	return &event, nil
}
