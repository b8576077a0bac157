package kafkax

// Topics carry one event type each; the topic name is the event type.
const (
	TopicAppointmentBooked        = "booking.appointment.booked.v1"
	TopicAppointmentRescheduled   = "booking.appointment.rescheduled.v1"
	TopicAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	TopicAppointmentDeleted       = "booking.appointment.deleted.v1"
	TopicReminderRequested        = "booking.reminder.requested.v1"

	TopicScheduleChanged = "studio.schedule.changed.v1"
	TopicCatalogChanged  = "studio.catalog.changed.v1"

	TopicReminderDue    = "scheduler.reminder.due.v1"
	TopicReminderDueDLQ = "scheduler.reminder.due.dlq.v1"

	TopicNotificationSent   = "notification.sent.v1"
	TopicNotificationFailed = "notification.failed.v1"

	TopicAuthAudit = "auth.audit.v1"
)
