package provider

import (
	"context"

	"github.com/buckneer/beastie-club/events/kafka"
	"github.com/buckneer/beastie-club/pkg/providers"
	"github.com/rs/zerolog"
)

// Default audit topics, overridable via kafka.topics in configuration
const (
	DefaultSpinTopic     = "wheel.spins"
	DefaultTransferTopic = "wheel.transfers"
)

// AuditProvider implements providers.SpinAuditor on Kafka. Events are
// published through the producer's async worker pool so a slow broker
// never delays a spin response.
type AuditProvider struct {
	producer      *kafka.Producer
	spinTopic     string
	transferTopic string
	logger        zerolog.Logger
}

// NewAuditProvider creates a new Kafka-backed spin auditor. Empty topic
// names fall back to the defaults.
func NewAuditProvider(producer *kafka.Producer, spinTopic, transferTopic string, logger zerolog.Logger) *AuditProvider {
	if spinTopic == "" {
		spinTopic = DefaultSpinTopic
	}
	if transferTopic == "" {
		transferTopic = DefaultTransferTopic
	}
	return &AuditProvider{
		producer:      producer,
		spinTopic:     spinTopic,
		transferTopic: transferTopic,
		logger:        logger.With().Str("component", "audit_provider").Logger(),
	}
}

// AuditSpin publishes a spin event keyed by identity
func (p *AuditProvider) AuditSpin(ctx context.Context, event *providers.SpinEvent) error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.SendMessage(p.spinTopic, event.Identity, event); err != nil {
		p.logger.Warn().Err(err).Str("identity", event.Identity).Msg("Failed to enqueue spin audit event")
		return err
	}
	return nil
}

// AuditTransfer publishes a transfer event keyed by account
func (p *AuditProvider) AuditTransfer(ctx context.Context, event *providers.TransferEvent) error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.SendMessage(p.transferTopic, event.AccountID, event); err != nil {
		p.logger.Warn().Err(err).Str("account_id", event.AccountID).Msg("Failed to enqueue transfer audit event")
		return err
	}
	return nil
}
