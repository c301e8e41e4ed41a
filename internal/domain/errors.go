package domain

import "errors"

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNameConflict  = errors.New("task with this name already exists")
	ErrOccurrenceNotFound = errors.New("occurrence not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrUnsupportedSchedule = errors.New("unsupported schedule kind")
	ErrInvalidCronExpr    = errors.New("invalid cron expression")
	ErrHandlerNotFound    = errors.New("handler not registered")
)
