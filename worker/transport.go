package worker

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	topicRequests  = "semindex.requests"
	topicResponses = "semindex.responses"
)

// bus is the message channel between a client and one unit. Each unit gets
// its own bus so that a dead unit's traffic can never reach its successor.
type bus struct {
	pubsub *gochannel.GoChannel
}

func newBus(logger *slog.Logger, buffer int64) *bus {
	return &bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
			// Keeps progress messages in publish order.
			BlockPublishUntilSubscriberAck: true,
		}, &watermillLoggerAdapter{logger: logger}),
	}
}

func (b *bus) publish(topic string, m Message) error {
	msg, err := encode(m)
	if err != nil {
		return err
	}
	return b.pubsub.Publish(topic, msg)
}

func (b *bus) subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *bus) close() error {
	return b.pubsub.Close()
}

// watermillLoggerAdapter adapts slog.Logger to watermill.LoggerAdapter interface.
type watermillLoggerAdapter struct {
	logger *slog.Logger
}

var _ watermill.LoggerAdapter = (*watermillLoggerAdapter)(nil)

func (wl *watermillLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	wl.logger.Error(msg, append(attrs(fields), "err", err)...)
}

func (wl *watermillLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	// watermill logs every subscribe and close at info; that is debug noise here.
	wl.logger.Debug(msg, attrs(fields)...)
}

func (wl *watermillLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	wl.logger.Debug(msg, attrs(fields)...)
}

func (wl *watermillLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	wl.logger.Log(context.Background(), slog.LevelDebug-4, msg, attrs(fields)...)
}

func (wl *watermillLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLoggerAdapter{logger: wl.logger.With(attrs(fields)...)}
}

func attrs(fields watermill.LogFields) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
