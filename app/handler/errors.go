package handler

import (
	"errors"
	"net/http"

	"traingrid/internal/scheduler"
)

// statusForError maps scheduler errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrNotFound),
		errors.Is(err, scheduler.ErrUnknownWorker):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrAlreadyAssigned),
		errors.Is(err, scheduler.ErrJobFullyAllocated),
		errors.Is(err, scheduler.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInsufficientWorkers):
		return http.StatusServiceUnavailable
	case errors.Is(err, scheduler.ErrInvalidInput),
		errors.Is(err, scheduler.ErrUnknownStrategy):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
