package models

// DeadLetterReason represents why a job was sent to the DLQ
type DeadLetterReason string

const (
	DLQReasonMaxRetries     DeadLetterReason = "max_retries_exceeded"
	DLQReasonInvalidJob     DeadLetterReason = "invalid_job"
	DLQReasonServerNotFound DeadLetterReason = "server_not_found"
	DLQReasonSyncDisabled   DeadLetterReason = "sync_disabled"
	DLQReasonAuthError      DeadLetterReason = "auth_error"
	DLQReasonMappingError   DeadLetterReason = "mapping_error"
	DLQReasonTimeout        DeadLetterReason = "timeout"
	DLQReasonPanic          DeadLetterReason = "panic"
	DLQReasonUnknown        DeadLetterReason = "unknown"
)
