package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/dnjuguna/mkulima-market/internal/config"
)

type EmailSender struct {
	client *ses.Client
	sender string
}

func NewEmailSender(ctx context.Context, cfg config.NotifierConfig) (*EmailSender, error) {
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("sender email address is not configured")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSKeyID, cfg.AWSSecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &EmailSender{client: ses.NewFromConfig(awsCfg), sender: cfg.SenderEmail}, nil
}

func (s *EmailSender) SendOrderConfirmation(ctx context.Context, to, name string, orderID int64, total string) error {
	if to == "" {
		return fmt.Errorf("recipient email is empty")
	}

	subject := fmt.Sprintf("Order #%d confirmed - Mkulima Market", orderID)
	bodyText := fmt.Sprintf(
		"Dear %s,\n\nYour payment was received and order #%d is confirmed.\n\n"+
			"Order total: KSh %s\n\n"+
			"The farmers are preparing your produce. You'll hear from us again when it ships.\n\n"+
			"Mkulima Market",
		name, orderID, total)
	bodyHTML := fmt.Sprintf(`<html><body>
<p>Dear %s,</p>
<p>Your payment was received and order <strong>#%d</strong> is confirmed.</p>
<p>Order total: <strong>KSh %s</strong></p>
<p>The farmers are preparing your produce. You'll hear from us again when it ships.</p>
<p>Mkulima Market</p>
</body></html>`, name, orderID, total)

	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(s.sender),
		Destination: &types.Destination{ToAddresses: []string{to}},
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(bodyText)},
				Html: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(bodyHTML)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
