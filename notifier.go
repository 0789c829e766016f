package identity

import "context"

// LogNotifier writes notifications to the logger instead of delivering
// them. It is the default wiring for development and tests; production
// deployments provide a real Notifier.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	logger := n.Logger
	if logger == nil {
		logger = defLogger{}
	}

	logger.Info("notification to=%s subject=%q body=%q", to, subject, body)
	return nil
}
