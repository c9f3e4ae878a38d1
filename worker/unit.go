package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
)

// Unit is the background computation unit that owns a model. It receives
// requests and sends responses only as messages on its bus; callers never
// touch the model directly.
//
// A panic while handling a request kills the unit: Done is closed and Err
// reports ErrUnitCrashed. A dead unit is never reused.
type Unit struct {
	model  ai.Model
	bus    *bus
	pool   *ants.Pool
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	loadMu sync.Mutex
	loaded bool

	done      chan struct{}
	endOnce   sync.Once
	err       error
	closeOnce sync.Once
}

type unitOptions struct {
	concurrency int
	buffer      int64
	logger      *slog.Logger
}

// UnitOption configures a Unit.
type UnitOption func(*unitOptions) error

// WithConcurrency sets how many requests the unit handles at once.
// Default is 1: requests are processed one at a time.
func WithConcurrency(n int) UnitOption {
	return func(o *unitOptions) error {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
		return nil
	}
}

// WithUnitLogger sets a custom logger.
// Default is slog.Default().
func WithUnitLogger(logger *slog.Logger) UnitOption {
	return func(o *unitOptions) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithBufferSize sets the message buffer of the unit's bus.
func WithBufferSize(n int) UnitOption {
	return func(o *unitOptions) error {
		if n < 0 {
			n = 0
		}
		o.buffer = int64(n)
		return nil
	}
}

// NewUnit starts a unit around model. The model is not loaded until the
// first InitModel or embedding request arrives.
func NewUnit(model ai.Model, opts ...UnitOption) (*Unit, error) {
	options := &unitOptions{
		concurrency: 1,
		buffer:      64,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Unit{
		model:  model,
		bus:    newBus(options.logger, options.buffer),
		logger: options.logger.With("component", "embedding-unit"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	pool, err := ants.NewPool(options.concurrency, ants.WithPanicHandler(func(p any) {
		u.fail(fmt.Errorf("%w: %v", ErrUnitCrashed, p))
	}))
	if err != nil {
		cancel()
		_ = u.bus.close()
		return nil, err
	}
	u.pool = pool

	requests, err := u.bus.subscribe(ctx, topicRequests)
	if err != nil {
		pool.Release()
		cancel()
		_ = u.bus.close()
		return nil, err
	}

	go u.run(requests)
	return u, nil
}

// Done is closed when the unit stops, either by Close or by a crash.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Err returns the crash error once Done is closed, or nil after a clean Close.
func (u *Unit) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// Dead reports whether the unit has stopped.
func (u *Unit) Dead() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// Close stops the unit and releases the model.
func (u *Unit) Close() error {
	var err error
	u.closeOnce.Do(func() {
		u.end(nil)
		u.cancel()
		u.pool.Release()
		if busErr := u.bus.close(); busErr != nil {
			err = busErr
		}
		if modelErr := u.model.Close(); modelErr != nil && err == nil {
			err = modelErr
		}
	})
	return err
}

// responses subscribes to everything the unit sends back. The subscription
// ends when ctx is cancelled or the unit closes.
func (u *Unit) responses(ctx context.Context) (<-chan *message.Message, error) {
	return u.bus.subscribe(ctx, topicResponses)
}

// send delivers a request to the unit. Publishing blocks while the unit is
// busy, so the caller's ctx bounds the wait; an abandoned request is still
// delivered later and dropped by the unit once its deadline has passed.
func (u *Unit) send(ctx context.Context, req Request) error {
	if u.Dead() {
		return unitError(u)
	}
	published := make(chan error, 1)
	go func() {
		published <- u.bus.publish(topicRequests, req)
	}()
	select {
	case err := <-published:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-u.done:
		return unitError(u)
	}
}

// requestContext bounds model work by the request deadline.
func (u *Unit) requestContext(deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(u.ctx)
	}
	return context.WithDeadline(u.ctx, deadline)
}

func (u *Unit) end(err error) {
	u.endOnce.Do(func() {
		u.err = err
		close(u.done)
	})
}

func (u *Unit) fail(err error) {
	u.logger.Error("embedding unit crashed", "err", err)
	u.end(err)
}

func (u *Unit) run(requests <-chan *message.Message) {
	for msg := range requests {
		msg.Ack()
		if u.Dead() {
			continue
		}

		req, err := decodeRequest(msg)
		if err != nil {
			u.logger.Warn("dropping undecodable request", "err", err)
			u.reply(Error{ID: correlationID(msg), Message: err.Error()})
			continue
		}

		if err := u.pool.Submit(func() { u.handle(req) }); err != nil {
			u.reply(Error{ID: req.CorrelationID(), Message: err.Error()})
		}
	}
}

func (u *Unit) handle(req Request) {
	switch r := req.(type) {
	case InitModel:
		u.handleInit(r)
	case EmbedText:
		u.handleEmbedText(r)
	case EmbedBatch:
		u.handleEmbedBatch(r)
	default:
		u.reply(Error{ID: req.CorrelationID(), Message: fmt.Sprintf("unsupported request %T", req)})
	}
}

func (u *Unit) handleInit(r InitModel) {
	err := u.ensureLoaded(func(p ai.Progress) {
		u.reply(progressMessage(r.ID, p))
	})
	if err != nil {
		u.reply(ModelProgress{ID: r.ID, Stage: ai.StageError, Message: err.Error()})
		u.reply(Error{ID: r.ID, Message: err.Error()})
		return
	}
	u.reply(ModelReady{ID: r.ID})
}

func (u *Unit) handleEmbedText(r EmbedText) {
	ctx, cancel := u.requestContext(r.Deadline)
	defer cancel()
	if err := ctx.Err(); err != nil {
		u.reply(Error{ID: r.ID, Message: "request expired before processing: " + err.Error()})
		return
	}
	if err := u.ensureLoaded(nil); err != nil {
		u.reply(Error{ID: r.ID, Message: err.Error()})
		return
	}

	vec, err := u.model.EmbedText(ctx, r.Text)
	if err == nil {
		err = u.checkDimensions(vec)
	}
	if err != nil {
		u.reply(Error{ID: r.ID, Message: err.Error()})
		return
	}

	u.reply(EmbeddingResult{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Embedding:  vec,
		TextHash:   core.ComputeHash(r.Text),
	})
}

func (u *Unit) handleEmbedBatch(r EmbedBatch) {
	ctx, cancel := u.requestContext(r.Deadline)
	defer cancel()
	if err := ctx.Err(); err != nil {
		u.reply(Error{ID: r.ID, Message: "request expired before processing: " + err.Error()})
		return
	}
	if err := u.ensureLoaded(nil); err != nil {
		u.reply(Error{ID: r.ID, Message: err.Error()})
		return
	}

	texts := make([]string, len(r.Items))
	for i, item := range r.Items {
		texts[i] = item.Text
	}

	vecs, err := u.model.EmbedTexts(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrEmptyResult, len(vecs), len(texts))
	}
	if err != nil {
		u.reply(Error{ID: r.ID, Message: err.Error()})
		return
	}

	results := make([]EmbeddingResult, len(r.Items))
	for i, item := range r.Items {
		if err := u.checkDimensions(vecs[i]); err != nil {
			u.reply(Error{ID: r.ID, Message: err.Error()})
			return
		}
		results[i] = EmbeddingResult{
			ID:         r.ID,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			Embedding:  vecs[i],
			TextHash:   core.ComputeHash(item.Text),
		}
	}
	u.reply(BatchResult{ID: r.ID, Results: results})
}

// ensureLoaded loads the model at most once per unit. A failed load may be
// retried by a later request.
func (u *Unit) ensureLoaded(report ai.ProgressFunc) error {
	u.loadMu.Lock()
	defer u.loadMu.Unlock()

	if u.loaded {
		report.Report(ai.Progress{Stage: ai.StageReady, Percent: 100})
		return nil
	}
	if err := u.model.Load(u.ctx, report); err != nil {
		return err
	}
	u.loaded = true
	report.Report(ai.Progress{Stage: ai.StageReady, Percent: 100})
	return nil
}

func (u *Unit) checkDimensions(vec []float32) error {
	if want := u.model.Dimensions(); len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ai.ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

func (u *Unit) reply(resp Response) {
	if u.Dead() {
		return
	}
	if err := u.bus.publish(topicResponses, resp); err != nil {
		u.logger.Debug("dropping response", "type", resp.Type(), "id", resp.CorrelationID(), "err", err)
	}
}
