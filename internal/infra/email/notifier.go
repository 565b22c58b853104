package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPNotifier mails the operator address when a run is aborted.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     []string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from, to string, logger *zap.Logger) *SMTPNotifier {
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &SMTPNotifier{host: host, port: port, from: from, to: recipients, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, runID, displayName, stage, errorMsg string) error {
	if len(n.to) == 0 {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := FormatFailureMessage(n.from, n.to, runID, displayName, stage, errorMsg)

	if err := smtp.SendMail(addr, nil, n.from, n.to, msg); err != nil {
		n.logger.Error("failed to send run failure email",
			zap.Strings("to", n.to),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("run failure email sent",
		zap.Strings("to", n.to),
		zap.String("run_id", runID),
	)
	return nil
}

func FormatFailureMessage(from string, to []string, runID, displayName, stage, errorMsg string) []byte {
	subject := fmt.Sprintf("Flight analysis aborted [%s]", runID)
	body := fmt.Sprintf(
		"Analysis run %q was aborted while %s.\r\n\r\n"+
			"Run ID: %s\r\n"+
			"Stage: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"No history record was written for this run.\r\n",
		displayName, strings.ToLower(stage), runID, stage, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		from, strings.Join(to, ", "), subject, body,
	))
}
