// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"pmc-registration/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the part of the SES client used for mail.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESClient sends EmailMessages through SES.
type SESClient struct {
	client SESService
	from   string
}

func NewSESClient(ctx context.Context, region, from string) (*SESClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewSESClientWith(ses.NewFromConfig(cfg), from), nil
}

func NewSESClientWith(client SESService, from string) *SESClient {
	return &SESClient{client: client, from: from}
}

// Send delivers msg. An empty From falls back to the configured sender.
func (s *SESClient) Send(ctx context.Context, msg models.EmailMessage) error {
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	from := msg.From
	if from == "" {
		from = s.from
	}

	body := &types.Body{Text: &types.Content{Data: aws.String(msg.Body)}}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody)}
	}
	input := &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body:    body,
		},
		Source: aws.String(from),
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	_, err := s.client.SendEmail(ctx, input)
	return err
}
