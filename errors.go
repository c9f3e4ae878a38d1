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


package semindex

import "errors"

var (
	// ErrEmptyQuery is returned when a search query has no text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyJobID is returned when a job-scoped call is given no job ID.
	ErrEmptyJobID = errors.New("job id cannot be empty")

	// ErrIndexClosed is returned by calls made after Close.
	ErrIndexClosed = errors.New("index closed")
)
