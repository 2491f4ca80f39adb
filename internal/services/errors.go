// Package services provides the business logic layer between the HTTP
// handlers and the analysis pipeline.
package services

// Error codes carried by ServiceError. Handlers map them to HTTP statuses.
const (
	// CodeInvalidRequest: the request carried no records, or only one of
	// the generation and weather uploads.
	CodeInvalidRequest = "INVALID_REQUEST"
	// CodeInvalidParams: window, cleaning threshold or fault multiplier out
	// of range.
	CodeInvalidParams = "INVALID_PARAMS"
	// CodeIngestFailed: a CSV upload could not be read or merged into any
	// inverter readings.
	CodeIngestFailed  = "INGEST_FAILED"
	CodeRunNotFound   = "RUN_NOT_FOUND"
	CodeUnknownTable  = "UNKNOWN_TABLE"
	CodeInvalidFormat = "INVALID_FORMAT"
	CodeInternal      = "INTERNAL_ERROR"
)

// ServiceError is returned by AnalysisService for every failure a client
// can act on. Details holds the offending run id, ingest stage or table.
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a new ServiceError
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewServiceErrorWithDetails creates a new ServiceError with details
func NewServiceErrorWithDetails(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// runNotFound reports a run id that was never stored or has expired.
func runNotFound(id string) *ServiceError {
	return NewServiceErrorWithDetails(CodeRunNotFound, "analysis run not found or expired",
		map[string]interface{}{"run_id": id})
}
