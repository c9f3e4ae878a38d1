package worker

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	metadataType          = "type"
	metadataCorrelationID = "correlation_id"
)

// encode serializes m into a watermill message. The variant tag and the
// correlation id travel as metadata; the variant itself is the JSON payload.
func encode(m Message) (*message.Message, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metadataType, string(m.Type()))
	msg.Metadata.Set(metadataCorrelationID, m.CorrelationID())
	return msg, nil
}

func decodeRequest(msg *message.Message) (Request, error) {
	switch t := MessageType(msg.Metadata.Get(metadataType)); t {
	case TypeInitModel:
		return decodeAs[InitModel](msg)
	case TypeEmbedText:
		return decodeAs[EmbedText](msg)
	case TypeEmbedBatch:
		return decodeAs[EmbedBatch](msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, t)
	}
}

func decodeResponse(msg *message.Message) (Response, error) {
	switch t := MessageType(msg.Metadata.Get(metadataType)); t {
	case TypeModelProgress:
		return decodeAs[ModelProgress](msg)
	case TypeModelReady:
		return decodeAs[ModelReady](msg)
	case TypeEmbeddingResult:
		return decodeAs[EmbeddingResult](msg)
	case TypeBatchResult:
		return decodeAs[BatchResult](msg)
	case TypeError:
		return decodeAs[Error](msg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, t)
	}
}

func decodeAs[T Message](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", v.Type(), err)
	}
	return v, nil
}

// correlationID reads the id from metadata, for messages whose payload
// could not be decoded.
func correlationID(msg *message.Message) string {
	return msg.Metadata.Get(metadataCorrelationID)
}
