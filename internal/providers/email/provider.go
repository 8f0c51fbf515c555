package email

import "context"

// Provider delivers HTML mail. SendTemplate renders one of the embedded
// templates with data before sending.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// NoOpProvider drops every message. It is used when SMTP_HOST is unset.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(context.Context, []string, string, string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(context.Context, []string, string, map[string]any) error {
	return nil
}

var (
	_ Provider = (*NoOpProvider)(nil)
	_ Provider = (*SMTPProvider)(nil)
)
