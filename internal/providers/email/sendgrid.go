package email

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendgridProvider struct {
	client *sendgrid.Client
}

func NewSendgrid(apiKey string) *SendgridProvider {
	return &SendgridProvider{client: sendgrid.NewSendClient(apiKey)}
}

func (p *SendgridProvider) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(msg.FromName, msg.From)
	to := mail.NewEmail("", msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	response, err := p.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send via sendgrid: %w", err)
	}
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected sendgrid status code: %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
