package httpapi

import (
	"net/http"
	"time"
)

// Error envelope matches what the mobile clients already parse:
// {"status":"error","message":...,"timestamp":...}. Never a stack trace.
type errorBody struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

func writeError(w http.ResponseWriter, httpStatus int, message string) {
	writeJSON(w, httpStatus, errorBody{
		Status:    "error",
		Message:   message,
		Timestamp: unixNow(),
	})
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
