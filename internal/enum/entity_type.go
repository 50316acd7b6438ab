package enum

type EntityType string

const (
	ACCOUNT EntityType = "MAILBOX_ACCOUNT"
	MESSAGE EntityType = "MESSAGE"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
