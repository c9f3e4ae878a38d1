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


package search

import "errors"

var (
	// ErrDimensionMismatch is returned when two vectors of different length
	// are compared. It indicates vectors written by different models.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrSourceRequired is returned when an engine is built without a record source.
	ErrSourceRequired = errors.New("record source required")

	// ErrInvalidLimit is returned for a result limit below one.
	ErrInvalidLimit = errors.New("limit must be at least 1")
)
