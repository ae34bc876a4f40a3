package utils

import "time"

// APIResponse is the envelope every JSON endpoint answers with, success
// or failure. Data and Error are mutually exclusive: exactly one of
// them is set depending on Success.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ErrorResponse pairs a stable, client-facing message with the failure
// detail. Callers must collapse internal errors to a generic detail
// before they reach this envelope; raw error text is only passed
// through for validation and precondition failures.
func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     detail,
		Timestamp: time.Now().UTC(),
	}
}
