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


package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/semindex/core"
)

// RecordMUS serializes EmbeddingRecords in MUS format.
var RecordMUS = recordMUS{}

type recordMUS struct{}

func (recordMUS) Marshal(r core.EmbeddingRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.ID, bs)
	n += ord.String.Marshal(string(r.EntityType), bs[n:])
	n += ord.String.Marshal(r.EntityID, bs[n:])
	n += ord.String.Marshal(r.ParentJobID, bs[n:])
	n += ord.String.Marshal(r.TextHash, bs[n:])
	n += marshalOptionalInt(r.ChunkIndex, bs[n:])
	n += marshalOptionalInt(r.ChunkTotal, bs[n:])
	n += varint.Int64.Marshal(r.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int.Marshal(len(r.Embedding), bs[n:])
	for _, v := range r.Embedding {
		n += raw.Float32.Marshal(v, bs[n:])
	}
	return
}

func (recordMUS) Unmarshal(bs []byte) (r core.EmbeddingRecord, n int, err error) {
	var (
		m          int
		entityType string
		micros     int64
		length     int
	)
	if r.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if entityType, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	r.EntityType = core.EntityType(entityType)
	if r.EntityID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if r.ParentJobID, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if r.TextHash, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if r.ChunkIndex, m, err = unmarshalOptionalInt(bs[n:]); err != nil {
		return
	}
	n += m
	if r.ChunkTotal, m, err = unmarshalOptionalInt(bs[n:]); err != nil {
		return
	}
	n += m
	if micros, m, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	r.CreatedAt = time.UnixMicro(micros).UTC()
	if length, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += m
	if length < 0 || length*4 > len(bs)-n {
		err = ErrTruncatedData
		return
	}
	r.Embedding = make([]float32, length)
	for i := range r.Embedding {
		if r.Embedding[i], m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += m
	}
	return
}

func (recordMUS) Size(r core.EmbeddingRecord) (size int) {
	size = ord.String.Size(r.ID)
	size += ord.String.Size(string(r.EntityType))
	size += ord.String.Size(r.EntityID)
	size += ord.String.Size(r.ParentJobID)
	size += ord.String.Size(r.TextHash)
	size += sizeOptionalInt(r.ChunkIndex)
	size += sizeOptionalInt(r.ChunkTotal)
	size += varint.Int64.Size(r.CreatedAt.UnixMicro())
	size += varint.Int.Size(len(r.Embedding))
	for _, v := range r.Embedding {
		size += raw.Float32.Size(v)
	}
	return
}

func marshalOptionalInt(v *int, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += varint.Int.Marshal(*v, bs[n:])
	}
	return
}

func unmarshalOptionalInt(bs []byte) (v *int, n int, err error) {
	var (
		present bool
		val     int
		m       int
	)
	if present, n, err = ord.Bool.Unmarshal(bs); err != nil || !present {
		return
	}
	if val, m, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	return &val, n + m, nil
}

func sizeOptionalInt(v *int) int {
	size := ord.Bool.Size(v != nil)
	if v != nil {
		size += varint.Int.Size(*v)
	}
	return size
}

// MarshalRecord serializes an EmbeddingRecord to bytes.
func MarshalRecord(record *core.EmbeddingRecord) []byte {
	buf := make([]byte, RecordMUS.Size(*record))
	RecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalRecord deserializes an EmbeddingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.EmbeddingRecord, error) {
	record, _, err := RecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalVector encodes a vector as consecutive little-endian float32 values.
func MarshalVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// UnmarshalVector decodes a blob written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob of %d bytes", ErrTruncatedData, len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
