package domain

import "errors"

// ErrorClass splits failures into the three classes the orchestrator and the
// message-ack layer branch on. Business errors go back to the caller and are
// never redelivered; transient errors are retried by the messaging layer;
// fatal errors require manual intervention.
type ErrorClass string

const (
	ErrorClassBusiness  ErrorClass = "business"
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassFatal     ErrorClass = "fatal"
)

type ClassifiedError struct {
	class ErrorClass
	err   error
}

func (e *ClassifiedError) Error() string     { return e.err.Error() }
func (e *ClassifiedError) Unwrap() error     { return e.err }
func (e *ClassifiedError) Class() ErrorClass { return e.class }

func BusinessError(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{class: ErrorClassBusiness, err: err}
}

func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{class: ErrorClassTransient, err: err}
}

func FatalError(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{class: ErrorClassFatal, err: err}
}

// ClassOf returns the class of err. Unclassified errors count as transient:
// an unknown infrastructure failure is safe to retry, a wrongly retried
// business failure is not.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.class
	}
	return ErrorClassTransient
}

var (
	ErrBookingNotFound       = BusinessError(errors.New("booking not found"))
	ErrFlightNotFound        = BusinessError(errors.New("flight not found"))
	ErrUnauthorized          = BusinessError(errors.New("booking belongs to another user"))
	ErrBookingNotPending     = BusinessError(errors.New("booking is not pending"))
	ErrBookingCancelled      = BusinessError(errors.New("booking is already cancelled"))
	ErrSeatsUnavailable      = BusinessError(errors.New("requested seats are not available"))
	ErrInsufficientSeats     = BusinessError(errors.New("insufficient available seats"))
	ErrEventAlreadyProcessed = BusinessError(errors.New("event already processed"))

	ErrVersionConflict = TransientError(errors.New("booking was modified concurrently"))
	ErrLockExpired     = BusinessError(errors.New("seat lock has expired"))

	ErrCompensationFailed = FatalError(errors.New("compensation failed"))
)
