// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"errors"
	"fmt"
)

// Class groups error codes by how a caller should react
type Class string

const (
	ClassValidation          Class = "VALIDATION"
	ClassNotFound            Class = "NOT_FOUND"
	ClassInsufficientBalance Class = "INSUFFICIENT_BALANCE"
	ClassConflict            Class = "CONFLICT"
	ClassInternal            Class = "INTERNAL"
)

type Code string

const (
	CodeInvalidFormat       Code = "INVALID_FORMAT"
	CodeInvalidType         Code = "INVALID_TYPE"
	CodeInvalidAmount       Code = "INVALID_AMOUNT"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodePoolNotFound        Code = "POOL_NOT_FOUND"
	CodeHerdNotFound        Code = "HERD_NOT_FOUND"
	CodeReceiptNotFound     Code = "RECEIPT_NOT_FOUND"
	CodeTransactionNotFound Code = "TRANSACTION_NOT_FOUND"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeIdempotencyConflict Code = "IDEMPOTENCY_CONFLICT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a classified ledger error. The package sentinels are *Error
// values and are matched with errors.Is
type Error struct {
	class Class
	code  Code
	msg   string
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) ErrorClass() Class {
	return e.class
}

func (e *Error) ErrorCode() Code {
	return e.code
}

var (
	ErrUserNotFound = &Error{
		class: ClassNotFound,
		code:  CodeUserNotFound,
		msg:   "user not found",
	}
	ErrPoolNotFound = &Error{
		class: ClassNotFound,
		code:  CodePoolNotFound,
		msg:   "pool not found",
	}
	ErrHerdNotFound = &Error{
		class: ClassNotFound,
		code:  CodeHerdNotFound,
		msg:   "herd not found",
	}
	ErrReceiptNotFound = &Error{
		class: ClassNotFound,
		code:  CodeReceiptNotFound,
		msg:   "receipt not found",
	}
	ErrTransactionNotFound = &Error{
		class: ClassNotFound,
		code:  CodeTransactionNotFound,
		msg:   "transaction not found",
	}
	ErrIdempotencyConflict = &Error{
		class: ClassConflict,
		code:  CodeIdempotencyConflict,
		msg:   "idempotency key reused with a different request",
	}
	ErrInsufficientBalance = &Error{
		class: ClassInsufficientBalance,
		code:  CodeInsufficientBalance,
		msg:   "insufficient balance",
	}
)

// ValidationError reports the first rule a request broke
type ValidationError struct {
	Code    Code
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) ErrorClass() Class {
	return ClassValidation
}

func (e *ValidationError) ErrorCode() Code {
	return e.Code
}

func invalid(code Code, field string, format string, args ...any) error {
	return &ValidationError{
		Code:    code,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

type classified interface {
	error
	ErrorClass() Class
	ErrorCode() Code
}

// ClassOf returns the class of err. Unclassified errors are INTERNAL
func ClassOf(err error) Class {
	var c classified
	if errors.As(err, &c) {
		return c.ErrorClass()
	}
	return ClassInternal
}

// CodeOf returns the code of err. Unclassified errors are INTERNAL
func CodeOf(err error) Code {
	var c classified
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}
