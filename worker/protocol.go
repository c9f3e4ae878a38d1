package worker

import (
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
)

// MessageType tags every message crossing the worker boundary.
type MessageType string

const (
	TypeInitModel       MessageType = "INIT_MODEL"
	TypeEmbedText       MessageType = "EMBED_TEXT"
	TypeEmbedBatch      MessageType = "EMBED_BATCH"
	TypeModelProgress   MessageType = "MODEL_PROGRESS"
	TypeModelReady      MessageType = "MODEL_READY"
	TypeEmbeddingResult MessageType = "EMBEDDING_RESULT"
	TypeBatchResult     MessageType = "BATCH_RESULT"
	TypeError           MessageType = "ERROR"
)

// Message is implemented by every request and response variant.
type Message interface {
	Type() MessageType
	CorrelationID() string
}

// Request is a message sent to the worker unit. The set of variants is
// closed: InitModel, EmbedText and EmbedBatch.
type Request interface {
	Message
	isRequest()
}

// Response is a message sent back by the worker unit. The set of variants
// is closed: ModelProgress, ModelReady, EmbeddingResult, BatchResult and
// Error. Every variant except ModelProgress completes its request.
type Response interface {
	Message
	isResponse()
}

// InitModel asks the unit to download and load its model.
type InitModel struct {
	ID string `json:"id"`
}

// EmbedText asks for the embedding of a single text.
type EmbedText struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	EntityType core.EntityType `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
	// Deadline is when the caller stops waiting. The unit skips or cancels
	// work past it.
	Deadline time.Time `json:"deadline,omitzero"`
}

// BatchItem is one text of an EmbedBatch request.
type BatchItem struct {
	Text       string          `json:"text"`
	EntityType core.EntityType `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
}

// EmbedBatch asks for the embeddings of several texts in one round trip.
type EmbedBatch struct {
	ID       string      `json:"id"`
	Items    []BatchItem `json:"items"`
	Deadline time.Time   `json:"deadline,omitzero"`
}

// ModelProgress streams initialization progress for an InitModel request.
type ModelProgress struct {
	ID       string   `json:"id"`
	Stage    ai.Stage `json:"stage"`
	Progress float64  `json:"progress"`
	Loaded   int64    `json:"loaded,omitempty"`
	Total    int64    `json:"total,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// ModelReady completes an InitModel request.
type ModelReady struct {
	ID string `json:"id"`
}

// EmbeddingResult completes an EmbedText request. It echoes the entity
// identity and carries the hash of the embedded text.
type EmbeddingResult struct {
	ID         string          `json:"id"`
	EntityType core.EntityType `json:"entityType,omitempty"`
	EntityID   string          `json:"entityId,omitempty"`
	Embedding  []float32       `json:"embedding"`
	TextHash   string          `json:"textHash"`
}

// BatchResult completes an EmbedBatch request, one result per item in order.
type BatchResult struct {
	ID      string            `json:"id"`
	Results []EmbeddingResult `json:"results"`
}

// Error fails exactly the request whose id it carries.
type Error struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (m InitModel) Type() MessageType       { return TypeInitModel }
func (m EmbedText) Type() MessageType       { return TypeEmbedText }
func (m EmbedBatch) Type() MessageType      { return TypeEmbedBatch }
func (m ModelProgress) Type() MessageType   { return TypeModelProgress }
func (m ModelReady) Type() MessageType      { return TypeModelReady }
func (m EmbeddingResult) Type() MessageType { return TypeEmbeddingResult }
func (m BatchResult) Type() MessageType     { return TypeBatchResult }
func (m Error) Type() MessageType           { return TypeError }

func (m InitModel) CorrelationID() string       { return m.ID }
func (m EmbedText) CorrelationID() string       { return m.ID }
func (m EmbedBatch) CorrelationID() string      { return m.ID }
func (m ModelProgress) CorrelationID() string   { return m.ID }
func (m ModelReady) CorrelationID() string      { return m.ID }
func (m EmbeddingResult) CorrelationID() string { return m.ID }
func (m BatchResult) CorrelationID() string     { return m.ID }
func (m Error) CorrelationID() string           { return m.ID }

func (InitModel) isRequest()  {}
func (EmbedText) isRequest()  {}
func (EmbedBatch) isRequest() {}

func (ModelProgress) isResponse()   {}
func (ModelReady) isResponse()      {}
func (EmbeddingResult) isResponse() {}
func (BatchResult) isResponse()     {}
func (Error) isResponse()           {}

// ToProgress converts the message into an ai.Progress.
func (m ModelProgress) ToProgress() ai.Progress {
	return ai.Progress{
		Stage:   m.Stage,
		Percent: m.Progress,
		Loaded:  m.Loaded,
		Total:   m.Total,
		Message: m.Message,
	}
}

func progressMessage(id string, p ai.Progress) ModelProgress {
	return ModelProgress{
		ID:       id,
		Stage:    p.Stage,
		Progress: p.Percent,
		Loaded:   p.Loaded,
		Total:    p.Total,
		Message:  p.Message,
	}
}
