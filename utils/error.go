package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorStaleRecord is returned when an optimistic-concurrency write loses the
// race (version column mismatch). Callers decide whether to reload and retry.
var ErrorStaleRecord = errors.New("record was modified by another request")

var ErrorReadOnlySession = errors.New("session is read-only")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
