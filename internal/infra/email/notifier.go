package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

// NotifyFailure mails userEmail that the composite job for source will not
// be retried.
func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, source, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	msg := failureMessage(n.from, userEmail, jobID, source, errorMsg)
	if err := smtp.SendMail(addr, nil, n.from, []string{userEmail}, msg); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

func failureMessage(from, to, jobID, source, errorMsg string) []byte {
	subject := fmt.Sprintf("aivideomake - Composite Failed [Job %s]", jobID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your composite video job has failed and will not be retried.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Foreground frames: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Check the frame directories and reference audio, then submit the job again.\r\n\r\n"+
			"-- aivideomake worker",
		jobID, source, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body))
}
