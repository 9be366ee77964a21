// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Kaz Walker, Thermoquad

package mercury

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongLength indicates a response outside the frame bounds, or a
	// payload that does not match the length a command expects.
	ErrWrongLength = errors.New("wrong length")

	// ErrWrongCRC indicates a checksum mismatch on a received frame.
	ErrWrongCRC = errors.New("wrong crc")

	// ErrWrongAddress indicates the meter echoed a different address than
	// the one the request was sent to.
	ErrWrongAddress = errors.New("wrong address")

	// ErrInitProblem indicates the meter kept asking for channel setup after
	// one re-initialization attempt.
	ErrInitProblem = errors.New("init problem")
)

var (
	// ErrBusy is returned when a call is made while another exchange is in flight.
	ErrBusy = errors.New("exchange already in flight")

	// ErrInvalidBCD indicates a time field with a nibble above 9.
	ErrInvalidBCD = errors.New("invalid bcd digit")

	// ErrInvalidPassword indicates a password that is not six ASCII digits.
	ErrInvalidPassword = errors.New("password must be 6 digits")
)

// TransportError wraps a failure reported by the Transport. The meter's
// channel state is unknown after one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
