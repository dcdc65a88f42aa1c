package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived is sent to the recipient of a wallet to wallet transfer.
	KindTransferReceived = "transfer_received"
	// KindWithdrawalInitiated is sent when a bank payout has been requested.
	KindWithdrawalInitiated = "withdrawal_initiated"
)

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
	Reference   string `json:"reference,omitempty"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "reference", message.Reference, "body", message.Body)
	return nil
}
