// Package types provides public type definitions for the nartya library
package types

// ErrorCode classifies a failed extraction
type ErrorCode string

const (
	ErrSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"
	ErrPageNotFound      ErrorCode = "PAGE_NOT_FOUND"
	ErrNoVideoFound      ErrorCode = "NO_VIDEO_FOUND"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrNetwork           ErrorCode = "NETWORK_ERROR"
	ErrUnknown           ErrorCode = "UNKNOWN_ERROR"
)

// Result is the outcome of one extraction
type Result struct {
	// Success is true when VideoURL is set
	Success bool `json:"success"`
	// VideoURL is the direct media URL
	VideoURL string `json:"videoUrl,omitempty"`
	// Note flags a result that may not be directly downloadable, such as a blob URL
	Note string `json:"note,omitempty"`
	// ErrorCode classifies a failure
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
	// Error is the raw error text
	Error string `json:"error,omitempty"`
	// UserMessage is a readable explanation suggesting another source
	UserMessage string `json:"userMessage,omitempty"`
}
