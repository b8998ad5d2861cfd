package models

// Table names as they appear in change events.
const (
	TableHospitals     = "hospitals"
	TableCapacityLogs  = "hospital_capacity_logs"
	TableDispatches    = "dispatch_requests"
	TableTransfers     = "transfer_requests"
	TableStaff         = "staff"
	TableAlerts        = "alerts"
	TableNotifications = "notifications"
	TableQueueEvents   = "queue_events"
)

// LiveTables emit change notifications on every committed write.
var LiveTables = []string{
	TableHospitals,
	TableDispatches,
	TableTransfers,
	TableStaff,
	TableAlerts,
	TableNotifications,
	TableQueueEvents,
}

// All lists every model the schema is created from, in dependency order.
func All() []any {
	return []any{
		(*User)(nil),
		(*RefreshToken)(nil),
		(*Hospital)(nil),
		(*CapacityLog)(nil),
		(*DispatchRequest)(nil),
		(*TransferRequest)(nil),
		(*Staff)(nil),
		(*Alert)(nil),
		(*Notification)(nil),
		(*QueueEvent)(nil),
	}
}
