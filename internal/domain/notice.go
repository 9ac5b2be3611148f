package domain

// NoticeLevel grades a transient user-facing notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notifier shows transient notifications to the learner.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}
