package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable identifier of a Failure.
type Code string

const (
	CodeNotFound                      Code = "record_not_found"
	CodeDuplicate                     Code = "duplicate_record"
	CodeUnknown                       Code = "unknown_error"
	CodeUnsupportedCurrencyPair       Code = "unsupported_currency_pair"
	CodeInvalidSenderAccount          Code = "invalid_sender_account"
	CodeInvalidReceiverAccount        Code = "invalid_receiver_account"
	CodeSendingCurrencyNotSupported   Code = "sending_currency_not_supported"
	CodeReceivingCurrencyNotSupported Code = "invalid_receiving_currency"
	CodeOldFxRate                     Code = "old_fx_rate_error"
	CodeNoAvailableRate               Code = "no_available_rate"
	CodeInsufficientFunds             Code = "insufficient_funds"
)

// Failure is the typed error returned across component boundaries.
// Two failures are equal under errors.Is when their codes match.
type Failure struct {
	Code    Code
	Message string
	Err     error
}

var (
	ErrNotFound                      = &Failure{Code: CodeNotFound, Message: "Record could not be found"}
	ErrDuplicate                     = &Failure{Code: CodeDuplicate, Message: "Record already exists"}
	ErrUnknown                       = &Failure{Code: CodeUnknown, Message: "An unknown error occurred"}
	ErrUnsupportedCurrencyPair       = &Failure{Code: CodeUnsupportedCurrencyPair, Message: "Currency pair is not supported"}
	ErrInvalidSenderAccount          = &Failure{Code: CodeInvalidSenderAccount, Message: "Sender account is invalid"}
	ErrInvalidReceiverAccount        = &Failure{Code: CodeInvalidReceiverAccount, Message: "Receiver account is invalid"}
	ErrSendingCurrencyNotSupported   = &Failure{Code: CodeSendingCurrencyNotSupported, Message: "Sending currency is not supported"}
	ErrReceivingCurrencyNotSupported = &Failure{Code: CodeReceivingCurrencyNotSupported, Message: "Receiving currency is not supported"}
	ErrOldFxRate                     = &Failure{Code: CodeOldFxRate, Message: "Exchange rate is older than the current rate"}
	ErrNoAvailableRate               = &Failure{Code: CodeNoAvailableRate, Message: "No exchange rate available for currency pair"}
	ErrInsufficientFunds             = &Failure{Code: CodeInsufficientFunds, Message: "Insufficient liquidity in pool"}
)

var retryable = map[Code]bool{
	CodeUnknown:         true,
	CodeNoAvailableRate: true,
}

var httpStatus = map[Code]int{
	CodeNotFound:                      http.StatusNotFound,
	CodeDuplicate:                     http.StatusConflict,
	CodeUnknown:                       http.StatusInternalServerError,
	CodeUnsupportedCurrencyPair:       http.StatusUnprocessableEntity,
	CodeInvalidSenderAccount:          http.StatusNotFound,
	CodeInvalidReceiverAccount:        http.StatusNotFound,
	CodeSendingCurrencyNotSupported:   http.StatusUnprocessableEntity,
	CodeReceivingCurrencyNotSupported: http.StatusUnprocessableEntity,
	CodeOldFxRate:                     http.StatusUnprocessableEntity,
	CodeNoAvailableRate:               http.StatusServiceUnavailable,
	CodeInsufficientFunds:             http.StatusUnprocessableEntity,
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Code == f.Code
}

// Retryable reports whether the failure may succeed on a later attempt.
func (f *Failure) Retryable() bool { return retryable[f.Code] }

// HTTPStatus maps the failure to a response status code.
func (f *Failure) HTTPStatus() int {
	if s, ok := httpStatus[f.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Wrap returns a copy of base carrying cause.
func Wrap(base *Failure, cause error) error {
	return &Failure{Code: base.Code, Message: base.Message, Err: cause}
}

// AsFailure extracts the Failure from err. Errors that are not failures are
// reported as ErrUnknown wrapping err.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Code: CodeUnknown, Message: ErrUnknown.Message, Err: err}
}

// Retryable reports whether err is a retryable failure.
func Retryable(err error) bool {
	f := AsFailure(err)
	return f != nil && f.Retryable()
}
