package enum

type SyncAction string

const (
	SyncActionStart   SyncAction = "start"
	SyncActionSuccess SyncAction = "success"
	SyncActionError   SyncAction = "error"
	SyncActionSkip    SyncAction = "skip"
)

func (a SyncAction) String() string {
	return string(a)
}

type NotificationType string

const (
	NotificationNewEmail       NotificationType = "new-email"
	NotificationUnreadIncrease NotificationType = "unread-increase"
	NotificationSyncError      NotificationType = "sync-error"
)

func (t NotificationType) String() string {
	return string(t)
}
