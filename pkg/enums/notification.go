package enums

// NotificationType categorizes in-app notifications for client rendering.
type NotificationType string

const (
	NotificationTypeAlertCreated  NotificationType = "alert_created"
	NotificationTypeAlertResolved NotificationType = "alert_resolved"
	NotificationTypeItemClaimed   NotificationType = "item_claimed"
	NotificationTypePollCreated   NotificationType = "poll_created"
	NotificationTypeChannelInvite NotificationType = "channel_invite"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeAlertCreated,
	NotificationTypeAlertResolved,
	NotificationTypeItemClaimed,
	NotificationTypePollCreated,
	NotificationTypeChannelInvite,
}

func (n NotificationType) String() string {
	return string(n)
}

func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}
