package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// DevProvider logs the email it would have sent instead of delivering it,
// matching management.DevLinkSender's development pattern. It is the only
// EmailProvider this core ships: real SMTP delivery is explicitly out of
// scope (spec §1).
type DevProvider struct {
	Logger *slog.Logger
	From   string
}

func NewDevProvider(logger *slog.Logger, from string) *DevProvider {
	return &DevProvider{Logger: logger, From: from}
}

func (p *DevProvider) Send(ctx context.Context, payload EmailPayload) (string, error) {
	if !ValidTemplates[payload.Template] {
		return "", &unknownTemplateError{template: payload.Template}
	}

	messageID := uuid.New().String()
	p.Logger.Info("✉️  EMAIL ISSUED (dev no-op)",
		"messageId", messageID,
		"from", p.From,
		"to", payload.To,
		"tenantId", payload.TenantID,
		"template", payload.Template,
		"data", payload.Data,
		"requestId", payload.RequestID,
	)
	return messageID, nil
}

type unknownTemplateError struct {
	template EmailTemplate
}

func (e *unknownTemplateError) Error() string {
	return "mailer: unknown template " + string(e.template)
}
