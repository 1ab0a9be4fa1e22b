package interfaces

import "context"

// NotificationKind identifies what an admin notification is about.
type NotificationKind string

const (
	NotifyInstancePurged     NotificationKind = "instance_purged"
	NotifyOrganizationPurged NotificationKind = "organization_purged"
)

// Notification tells the admins of an instance or organization what a
// background operation did.
type Notification struct {
	Kind           NotificationKind
	InstanceID     string
	OrganizationID string
	Outcome        string
	Recipients     []string
}

// Notifier delivers admin notifications. Delivery is best effort and
// failures never abort the operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
