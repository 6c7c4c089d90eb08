package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"steward/pkg/email"
	"steward/pkg/logging"
)

type EmailNotifier struct {
	sender     *email.Sender
	smtpConfig email.Config
	recipient  string
	logger     logging.Logger
}

func NewEmailNotifier(smtp email.Config, recipient string, logger logging.Logger) *EmailNotifier {
	return &EmailNotifier{
		sender:     email.NewSender(smtp),
		smtpConfig: smtp,
		recipient:  recipient,
		logger:     logger,
	}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) IsConfigured() bool {
	return n.smtpConfig.Host != "" && n.smtpConfig.From != "" && n.recipient != ""
}

func (n *EmailNotifier) Notify(ctx context.Context, report Report) error {
	subject := fmt.Sprintf("Check-in report: %d succeeded, %d failed", report.Succeeded, report.Failed)

	body, err := renderEmailBody(report)
	if err != nil {
		return fmt.Errorf("render check-in report email: %w", err)
	}

	if err := n.sender.SendMail(ctx, n.recipient, subject, body); err != nil {
		return err
	}

	n.logger.WithFields(logging.Fields{"to": n.recipient}).Info("Check-in report email sent")
	return nil
}

func renderEmailBody(report Report) (string, error) {
	funcs := template.FuncMap{
		"statusIcon": func(success bool) string {
			if success {
				return "✅"
			}
			return "❌"
		},
		"money": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},
	}

	tpl, err := template.New("checkin_report").Funcs(funcs).Parse(checkinEmailTemplate)
	if err != nil {
		return "", err
	}

	data := struct {
		Report
		GeneratedAtDisplay string
	}{
		Report:             report,
		GeneratedAtDisplay: report.GeneratedAt.Format(time.DateTime),
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const checkinEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Check-in Report</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 640px; margin: 0 auto; padding: 24px;">
        <h2 style="color: #2c3e50;">Check-in Report</h2>

        <p>Run finished at {{.GeneratedAtDisplay}}.</p>

        <div style="background-color: #f8f9fa; padding: 16px; border-radius: 6px; margin: 20px 0;">
            <strong>Results</strong>
            <p style="margin: 10px 0 0 0;">✓ {{.Succeeded}} succeeded &nbsp; ✗ {{.Failed}} failed</p>
            {{if .BalanceChanged}}<p style="margin: 6px 0 0 0;">Balances changed since the previous run.</p>{{end}}
        </div>

        <table style="width: 100%; border-collapse: collapse; margin-bottom: 20px;">
            <tr style="background-color: #eef1f5;">
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Account</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Outcome</th>
                <th style="padding: 10px; text-align: left; border-bottom: 1px solid #ddd;">Balance</th>
            </tr>
            {{range .Outcomes}}
            <tr>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">
                    <strong>{{.Account}}</strong>
                    <div style="color: #6c757d; font-size: 12px;">{{.Platform}}</div>
                </td>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">{{statusIcon .Success}} {{.Message}}</td>
                <td style="padding: 10px; border-bottom: 1px solid #eee;">
                    {{if .Balance}}{{money .Balance.Quota}} (used {{money .Balance.Used}}){{else}}-{{end}}
                </td>
            </tr>
            {{end}}
        </table>
    </div>
</body>
</html>
`
