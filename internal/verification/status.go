package verification

import "fmt"

// verifyReceipt status codes
const (
	NoStatus                = -1
	StatusOK                = 0
	StatusSandboxReceipt    = 21007 // sandbox receipt sent to production
	StatusProductionReceipt = 21008 // production receipt sent to sandbox
)

var statusText = map[int]string{
	21000: "the request to the App Store was not made using HTTP POST",
	21001: "this status code is no longer sent by the App Store",
	21002: "the receipt-data property was malformed or the service experienced a temporary issue",
	21003: "the receipt could not be authenticated",
	21004: "the shared secret does not match the shared secret on file",
	21005: "the receipt server was temporarily unable to provide the receipt",
	21006: "the receipt is valid but the subscription has expired",
	21007: "this receipt is from the test environment but was sent to production",
	21008: "this receipt is from the production environment but was sent to the test environment",
	21009: "internal data access error",
	21010: "the user account cannot be found or has been deleted",
}

// StatusText describes a verifyReceipt status
func StatusText(status int) string {
	if text, ok := statusText[status]; ok {
		return text
	}
	if status >= 21100 && status <= 21199 {
		return "internal data access error"
	}
	if status == StatusOK {
		return "ok"
	}
	return "unknown status"
}

// StatusError represents a non-zero verifyReceipt status
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("receipt verification failed with status %d: %s", e.Status, StatusText(e.Status))
}
