package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTaskID is the standardized key for task identifiers.
	FieldTaskID = "task_id"
	// FieldComponentID is the standardized key for task component identifiers.
	FieldComponentID = "component_id"
	// FieldStageID is the standardized key for production stage identifiers.
	FieldStageID = "stage_id"
	// FieldGroup names the broadcast data group a log line refers to.
	FieldGroup = "group"
	// FieldSubscriberID identifies a broadcast subscriber connection.
	FieldSubscriberID = "subscriber_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags log lines with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator-facing next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)
