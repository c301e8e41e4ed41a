package handler

const (
	errInternalServer     = "Internal server error"
	errTaskNotFound       = "Task not found"
	errDuplicateTask      = "Task with this name already exists"
	errOccurrenceNotFound = "Occurrence not found"
	errExecutionNotFound  = "Execution not found"
	errInvalidSchedule    = "Invalid schedule expression"
)
