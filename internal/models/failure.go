package models

type FailureStatus string

const (
	StatusWarning FailureStatus = "warning"
	StatusError   FailureStatus = "error"
	StatusInfo    FailureStatus = "info"
)

type NumberInfo struct {
	Number    string `json:"number"`
	Remaining int    `json:"remaining"`
	Requested int    `json:"requested"`
}

// FailureResult is returned to callers instead of an error when a ticket
// transaction is rejected, so the UI can render a specific message
type FailureResult struct {
	Success    bool          `json:"success"`
	Status     FailureStatus `json:"status"`
	Message    string        `json:"message"`
	NumberInfo *NumberInfo   `json:"numberInfo,omitempty"`
}

func NewFailure(status FailureStatus, message string) *FailureResult {
	return &FailureResult{Success: false, Status: status, Message: message}
}

func NewNumberFailure(status FailureStatus, message, number string, remaining, requested int) *FailureResult {
	return &FailureResult{
		Success: false,
		Status:  status,
		Message: message,
		NumberInfo: &NumberInfo{
			Number:    number,
			Remaining: remaining,
			Requested: requested,
		},
	}
}
