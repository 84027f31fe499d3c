// Copyright 2024 The Tektite Authors
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

package errors

import (
	"fmt"
)

type ErrorCode int

const (
	InvalidFlow = iota + 1000
	InvalidSchedulingStrategy
	InvalidTransformation
	InvalidStatement
	Unavailable = iota + 2000
	ShutdownError
	InvalidConfiguration = iota + 3000
	InternalError        = iota + 5000
)

func NewInternalError(errReference string) StreamflowError {
	return NewStreamflowErrorf(InternalError, "internal error - reference: %s please consult server logs for details", errReference)
}

func NewInvalidConfigurationError(msg string) StreamflowError {
	return NewStreamflowErrorf(InvalidConfiguration, "invalid configuration: %s", msg)
}

func NewInvalidFlowErrorf(msgFormat string, args ...interface{}) StreamflowError {
	return NewStreamflowErrorf(InvalidFlow, "invalid flow: "+msgFormat, args...)
}

func NewInvalidSchedulingStrategyErrorf(msgFormat string, args ...interface{}) StreamflowError {
	return NewStreamflowErrorf(InvalidSchedulingStrategy, "invalid scheduling strategy: "+msgFormat, args...)
}

func NewInvalidTransformationErrorf(msgFormat string, args ...interface{}) StreamflowError {
	return NewStreamflowErrorf(InvalidTransformation, "invalid transformation: "+msgFormat, args...)
}

func NewInvalidStatementErrorf(msgFormat string, args ...interface{}) StreamflowError {
	return NewStreamflowErrorf(InvalidStatement, "invalid statement: "+msgFormat, args...)
}

func NewStreamflowErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) StreamflowError {
	msg := fmt.Sprintf(msgFormat, args...)
	return StreamflowError{Code: errorCode, Msg: msg}
}

func NewStreamflowError(errorCode ErrorCode, msg string) StreamflowError {
	return StreamflowError{Code: errorCode, Msg: msg}
}

func Error(msg string) error {
	return New(msg)
}

type StreamflowError struct {
	Code ErrorCode
	Msg  string
}

func (u StreamflowError) Error() string {
	return u.Msg
}

// HasCode returns true if err, or any error it wraps, is a StreamflowError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var serr StreamflowError
	if As(err, &serr) {
		return serr.Code == code
	}
	return false
}
