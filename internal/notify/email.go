package notify

import (
	"context"
	"fmt"
	"html"
	"sync"

	brevo "github.com/getbrevo/brevo-go/lib"

	"inapppay/internal/models"
	"inapppay/pkg/logging"
)

// AlertConfig configures the Brevo alerter
type AlertConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	To        string
	// BasePath overrides the Brevo API endpoint
	BasePath string
}

// BrevoAlerter e-mails an operator when a receipt fails verification
type BrevoAlerter struct {
	cfg     AlertConfig
	client  *brevo.APIClient
	pending sync.WaitGroup
}

func NewBrevoAlerter(cfg AlertConfig) *BrevoAlerter {
	bc := brevo.NewConfiguration()
	bc.AddDefaultHeader("api-key", cfg.APIKey)
	if cfg.BasePath != "" {
		bc.BasePath = cfg.BasePath
	}
	return &BrevoAlerter{
		cfg:    cfg,
		client: brevo.NewAPIClient(bc),
	}
}

// OnOutcome alerts on VerificationFailed only
func (a *BrevoAlerter) OnOutcome(ctx context.Context, event models.OutcomeEvent) {
	if event.Outcome != models.OutcomeVerificationFailed || a.cfg.To == "" {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		if err := a.SendAlert(context.WithoutCancel(ctx), event); err != nil {
			logging.Errorf("Failed to send verification alert for transaction %s: %v", event.TransactionID, err)
		}
	}()
}

// Flush waits for in-flight alerts
func (a *BrevoAlerter) Flush() {
	a.pending.Wait()
}

// SendAlert sends one alert e-mail
func (a *BrevoAlerter) SendAlert(ctx context.Context, event models.OutcomeEvent) error {
	subject := fmt.Sprintf("Receipt verification failed - %s", event.ProductID)

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>Receipt verification failed</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h1 style="color: #333;">Receipt verification failed</h1>
			<table style="color: #666; font-size: 14px;">
				<tr><td>Transaction</td><td>%s</td></tr>
				<tr><td>Product</td><td>%s</td></tr>
				<tr><td>Environment</td><td>%s</td></tr>
				<tr><td>Status</td><td>%d</td></tr>
				<tr><td>Attempts</td><td>%d</td></tr>
				<tr><td>Reason</td><td>%s</td></tr>
			</table>
		</body>
		</html>
	`, html.EscapeString(event.TransactionID), html.EscapeString(event.ProductID),
		event.Environment, event.Status, event.Attempts, html.EscapeString(event.Reason))

	textContent := fmt.Sprintf(
		"Receipt verification failed\n\nTransaction: %s\nProduct: %s\nEnvironment: %s\nStatus: %d\nAttempts: %d\nReason: %s\n",
		event.TransactionID, event.ProductID, event.Environment, event.Status, event.Attempts, event.Reason)

	email := brevo.SendSmtpEmail{
		Sender: &brevo.SendSmtpEmailSender{
			Name:  a.cfg.FromName,
			Email: a.cfg.FromEmail,
		},
		To: []brevo.SendSmtpEmailTo{
			{Email: a.cfg.To},
		},
		Subject:     subject,
		HtmlContent: htmlContent,
		TextContent: textContent,
	}

	_, resp, err := a.client.TransactionalEmailsApi.SendTransacEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}

	logging.Infof("Verification alert sent to %s for transaction %s", a.cfg.To, event.TransactionID)
	return nil
}
