package provider

import (
	"context"
	"fmt"

	"github.com/buckneer/beastie-club/config"
	"github.com/buckneer/beastie-club/httpclient"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/rs/zerolog"
)

// NotifyProvider implements providers.AdminNotifier against the operator
// backend webhook. When the webhook is disabled in configuration every
// call is a no-op.
type NotifyProvider struct {
	client  *httpclient.Client
	enabled bool
	logger  zerolog.Logger
}

// NewNotifyProvider creates a new admin webhook notifier
func NewNotifyProvider(cfg config.AdminWebhookConfig, logger zerolog.Logger) *NotifyProvider {
	p := &NotifyProvider{
		enabled: cfg.Enabled && cfg.BaseURL != "",
		logger:  logger.With().Str("component", "notify_provider").Logger(),
	}
	if p.enabled {
		p.client = httpclient.New(httpclient.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	}
	return p
}

// NotifyPrizeIssued posts the freshly issued redemption to the operator
// backend so counter staff see it before the QR code is scanned
func (p *NotifyProvider) NotifyPrizeIssued(ctx context.Context, redemption *wheel.PrizeRedemption) error {
	if !p.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"uniqueCode": redemption.Code,
		"accountId":  redemption.AccountID,
		"prizeLabel": redemption.PrizeLabel,
		"issuedAt":   redemption.IssuedAt,
	}

	resp, err := p.client.Post(ctx, "/api/prizes", payload, nil)
	if err != nil {
		return fmt.Errorf("failed to notify admin backend: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("admin backend rejected prize notification: HTTP %d", resp.StatusCode)
	}

	p.logger.Debug().
		Str("code", redemption.Code).
		Msg("Prize notification delivered")
	return nil
}
