package notify

import "fmt"

// ErrorClass classifies a delivery failure.
type ErrorClass string

const (
	ClassEncode    ErrorClass = "encode"    // payload could not be built
	ClassTransport ErrorClass = "transport" // request never got a response
	ClassRejected  ErrorClass = "rejected"  // endpoint answered with a non-2xx status
)

// DeliveryError is returned when an alert could not be delivered.
type DeliveryError struct {
	Class      ErrorClass
	StatusCode int    // set for ClassRejected
	Body       string // truncated response body, set for ClassRejected
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Class == ClassRejected:
		return fmt.Sprintf("webhook rejected alert: status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("webhook %s error: %v", e.Class, e.Err)
	default:
		return fmt.Sprintf("webhook %s error", e.Class)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }
