// Package notify delivers admin notifications about background operations.
package notify

import (
	"context"
	"log/slog"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// LogNotifier writes notifications to the log. It stands in for mail
// delivery, which this service does not implement.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, notification interfaces.Notification) error {
	n.log.Info("Admin notification",
		"kind", notification.Kind,
		"instanceID", notification.InstanceID,
		"organizationID", notification.OrganizationID,
		"outcome", notification.Outcome,
		"recipients", notification.Recipients)
	return nil
}

// MockNotifier mocks the Notifier interface
type MockNotifier struct {
	mock.Mock
}

// Notify mocks the Notify method
func (m *MockNotifier) Notify(ctx context.Context, notification interfaces.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}
