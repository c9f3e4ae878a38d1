// Copyright 2025 Poiesic Systems
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


package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrUnitCrashed is returned for every request outstanding when the
	// worker unit dies from an unrecovered failure.
	ErrUnitCrashed = errors.New("worker unit crashed")

	// ErrTerminated is returned for requests outstanding when the client
	// is terminated.
	ErrTerminated = errors.New("worker terminated")

	// ErrUnitClosed is returned when a message is sent to a closed unit.
	ErrUnitClosed = errors.New("worker unit closed")

	// ErrModelLoad wraps initialization failures reported by the unit.
	ErrModelLoad = errors.New("model initialization failed")

	// ErrUnknownMessage is returned when decoding a message with an unknown type tag.
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrUnexpectedResponse is returned when a request completes with a
	// response variant that does not belong to it.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrModelFactoryRequired is returned when a client is built without a model factory.
	ErrModelFactoryRequired = errors.New("model factory required")
)

// RemoteError is an ERROR message reported by the worker unit for one request.
type RemoteError struct {
	ID      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker error (request %s): %s", e.ID, e.Message)
}
