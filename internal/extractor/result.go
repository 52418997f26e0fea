package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

// Code is the closed set of failure classifications handed to callers.
type Code string

const (
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodePageNotFound      Code = "PAGE_NOT_FOUND"
	CodeNoVideoFound      Code = "NO_VIDEO_FOUND"
	CodeTimeout           Code = "TIMEOUT"
	CodeNetworkError      Code = "NETWORK_ERROR"
	CodeUnknownError      Code = "UNKNOWN_ERROR"
)

// Result is the outcome of one extraction attempt: either Success or
// Failure. Callers type-switch on it.
type Result interface {
	result()
}

// Success carries the direct media URL. Note is set when the URL is likely
// transient, e.g. a blob URL read from the player element.
type Success struct {
	VideoURL string `json:"videoUrl"`
	Note     string `json:"note,omitempty"`
}

// Failure is a classified extraction failure. UserMessage is safe to show;
// RawError is the underlying error text for logs.
type Failure struct {
	Code        Code   `json:"errorCode"`
	RawError    string `json:"error"`
	UserMessage string `json:"userMessage"`
}

func (Success) result() {}
func (Failure) result() {}

// Error lets a Failure travel as an error.
func (f Failure) Error() string {
	if f.RawError == "" {
		return string(f.Code)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.RawError)
}

// BlobNote marks a Success recovered from the player element that may not
// be downloadable directly.
const BlobNote = "Blob URL - may not be directly downloadable"

var userMessages = map[Code]string{
	CodeSourceUnavailable: "This source is not available. Please try another source.",
	CodePageNotFound:      "This video no longer exists or was removed. Please try another source.",
	CodeNoVideoFound:      "Could not extract the video from this source. The player may use a protection system (DRM) or the source is no longer valid. Please try another source.",
	CodeTimeout:           "Extraction took too long. This source may be too slow. Please try another source.",
	CodeNetworkError:      "Network connection error. Check your internet connection or try another source.",
	CodeUnknownError:      "Something went wrong during extraction. Please retry with another source.",
}

// UserMessage returns the human readable suggestion for c.
func UserMessage(c Code) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CodeUnknownError]
}

func fail(c Code, raw string) Failure {
	return Failure{Code: c, RawError: raw, UserMessage: UserMessage(c)}
}

var unreachableMarkers = []string{
	"ERR_NAME_NOT_RESOLVED",
	"ERR_CONNECTION_REFUSED",
	"ERR_CONNECTION_TIMED_OUT",
	"ERR_INTERNET_DISCONNECTED",
	"ERR_ADDRESS_UNREACHABLE",
}

var fatalStatuses = []int{404, 410, 500, 503}

// fatalStatusText matches a fatal status code as a whole number so that
// "Timeout 15000ms exceeded" is not read as a 500.
var fatalStatusText = regexp.MustCompile(`\b(404|410|500|503)\b`)

// classifyNavigation maps a navigation error to a failure code. fatal is
// false when the error is a soft abort and racing should continue.
func classifyNavigation(err error) (code Code, fatal bool) {
	msg := err.Error()

	if strings.Contains(msg, "ERR_ABORTED") {
		return "", false
	}
	for _, marker := range unreachableMarkers {
		if strings.Contains(msg, marker) {
			return CodeSourceUnavailable, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, true
	}
	if fatalStatusText.MatchString(msg) {
		return CodePageNotFound, true
	}
	return classifyError(err), true
}

// classifyStatus reports whether a navigation response status ends the
// attempt.
func classifyStatus(status int) (Code, bool) {
	for _, s := range fatalStatuses {
		if status == s {
			return CodePageNotFound, true
		}
	}
	return "", false
}

// classifyError is the catch-all classification for errors outside the
// navigation step.
func classifyError(err error) Code {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return CodeTimeout
	case strings.Contains(msg, "net::"):
		return CodeNetworkError
	default:
		return CodeUnknownError
	}
}
