package failure

import (
	"errors"
	"fmt"
)

// DecodeError marks a queue message body that is not a valid alert document.
// Params: wrapped decode cause.
// Returns: typed decode failure (message is requeued by consumer).
type DecodeError struct {
	Err error
}

// Error returns wrapped decode message.
// Params: none.
// Returns: string representation.
func (e DecodeError) Error() string {
	if e.Err == nil {
		return "decode alert"
	}
	return "decode alert: " + e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e DecodeError) Unwrap() error {
	return e.Err
}

// DeliveryFailed marks webhook delivery failures (transport error or non-2xx status).
// Params: channel name, HTTP status (0 for transport errors), and wrapped cause.
// Returns: typed delivery failure propagated by router.
type DeliveryFailed struct {
	Channel string
	Status  int
	Err     error
}

// Error returns channel-prefixed delivery message.
// Params: none.
// Returns: string representation.
func (e DeliveryFailed) Error() string {
	msg := "delivery failed"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s delivery failed status=%d: %s", e.Channel, e.Status, msg)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.Channel, msg)
}

// Unwrap exposes wrapped cause.
// Params: none.
// Returns: wrapped error.
func (e DeliveryFailed) Unwrap() error {
	return e.Err
}

// EmailDeliveryFailed marks SMTP failures. It is logged by the email sender and never propagated.
type EmailDeliveryFailed struct {
	Recipient string
	Err       error
}

func (e EmailDeliveryFailed) Error() string {
	return fmt.Sprintf("email to %s failed: %v", e.Recipient, e.Err)
}

func (e EmailDeliveryFailed) Unwrap() error {
	return e.Err
}

// TokenExchangeFailed marks OAuth client-credentials exchange failures.
// Params: HTTP status (0 for transport errors) and wrapped cause.
// Returns: typed token failure returned to credential cache callers.
type TokenExchangeFailed struct {
	Status int
	Err    error
}

// Error returns token exchange message.
// Params: none.
// Returns: string representation.
func (e TokenExchangeFailed) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("token exchange failed status=%d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

// Unwrap exposes wrapped cause.
// Params: none.
// Returns: wrapped error.
func (e TokenExchangeFailed) Unwrap() error {
	return e.Err
}

// PoolInitFailed marks broker pool initialization failures (fatal for startup).
type PoolInitFailed struct {
	Err error
}

func (e PoolInitFailed) Error() string {
	return "broker pool init: " + errString(e.Err)
}

func (e PoolInitFailed) Unwrap() error {
	return e.Err
}

// PoolShutdownFailed marks broker pool shutdown failures (logged and returned to caller).
type PoolShutdownFailed struct {
	Err error
}

func (e PoolShutdownFailed) Error() string {
	return "broker pool shutdown: " + errString(e.Err)
}

func (e PoolShutdownFailed) Unwrap() error {
	return e.Err
}

// IsDecode reports whether error chain contains DecodeError.
// Params: candidate error.
// Returns: true when message body could not be decoded.
func IsDecode(err error) bool {
	var target DecodeError
	return errors.As(err, &target)
}

// IsDelivery reports whether error chain contains DeliveryFailed.
// Params: candidate error.
// Returns: true when webhook delivery failed.
func IsDelivery(err error) bool {
	var target DeliveryFailed
	return errors.As(err, &target)
}

// IsTokenExchange reports whether error chain contains TokenExchangeFailed.
// Params: candidate error.
// Returns: true when OAuth exchange failed.
func IsTokenExchange(err error) bool {
	var target TokenExchangeFailed
	return errors.As(err, &target)
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
