// Package mailer defines the outbound-email contract the job handlers in
// cmd/worker send through. Real SMTP delivery is out of scope for this
// core (spec §1); the only shipped implementation is DevProvider, which
// logs what it would have sent.
package mailer

import (
	"context"

	"github.com/google/uuid"
)

// EmailProvider is the boundary between the job handlers and whatever
// actually delivers mail. Implementations must be safe for concurrent use.
type EmailProvider interface {
	// Send delivers an email and returns a provider message id for tracing.
	Send(ctx context.Context, payload EmailPayload) (providerMessageID string, err error)
}

// EmailPayload carries everything a provider needs to render and deliver
// one message. Callers are expected to have already resolved To/TenantID
// from validated, server-side state — never raw request input.
type EmailPayload struct {
	To        string         `json:"to"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Template  EmailTemplate  `json:"template"`
	Data      map[string]any `json:"data"`
	RequestID string         `json:"request_id"`
}

// EmailTemplate restricts Send to a fixed set of known templates.
type EmailTemplate string

const (
	TemplateInviteUser        EmailTemplate = "invite_user"
	TemplatePasswordReset     EmailTemplate = "password_reset"
	TemplateEmailVerification EmailTemplate = "email_verification"
	TemplateMFAEnabled        EmailTemplate = "mfa_enabled"
	TemplateMFADisabled       EmailTemplate = "mfa_disabled"
	TemplateAccountLocked     EmailTemplate = "account_locked"
	TemplatePasswordChanged   EmailTemplate = "password_changed"
)

// ValidTemplates is the set Send implementations should reject outside of.
var ValidTemplates = map[EmailTemplate]bool{
	TemplateInviteUser:        true,
	TemplatePasswordReset:     true,
	TemplateEmailVerification: true,
	TemplateMFAEnabled:        true,
	TemplateMFADisabled:       true,
	TemplateAccountLocked:     true,
	TemplatePasswordChanged:   true,
}
