package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultInitTimeout    = 5 * time.Minute
)

// Client talks to at most one live worker unit. It creates the unit on
// demand, correlates responses with outstanding requests, and replaces the
// unit after it crashes.
type Client struct {
	factory        ai.ModelFactory
	requestTimeout time.Duration
	initTimeout    time.Duration
	unitOpts       []UnitOption
	onFatal        func(error)
	logger         *slog.Logger

	mu           sync.Mutex
	unit         *Unit
	ready        bool
	pending      map[string]*pendingRequest
	listeners    map[int]ai.ProgressFunc
	nextListener int

	initGroup singleflight.Group
}

type result struct {
	resp Response
	err  error
}

type pendingRequest struct {
	unit     *Unit
	ch       chan result
	progress ai.ProgressFunc
}

// Option configures a Client.
type Option func(*Client) error

// WithRequestTimeout bounds requests whose context carries no deadline.
// Default is 60 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		c.requestTimeout = d
		return nil
	}
}

// WithInitTimeout bounds the shared model load.
// Default is 5 minutes.
func WithInitTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("init timeout must be positive, got %s", d)
		}
		c.initTimeout = d
		return nil
	}
}

// WithUnitOptions sets the options used for every unit the client spawns.
func WithUnitOptions(opts ...UnitOption) Option {
	return func(c *Client) error {
		c.unitOpts = append(c.unitOpts, opts...)
		return nil
	}
}

// WithFatalHandler registers fn to be called after a unit crashes.
func WithFatalHandler(fn func(error)) Option {
	return func(c *Client) error {
		c.onFatal = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a client. No unit is started until the first request.
func NewClient(factory ai.ModelFactory, opts ...Option) (*Client, error) {
	if factory == nil {
		return nil, ErrModelFactoryRequired
	}
	c := &Client{
		factory:        factory,
		requestTimeout: DefaultRequestTimeout,
		initTimeout:    DefaultInitTimeout,
		logger:         slog.Default(),
		pending:        make(map[string]*pendingRequest),
		listeners:      make(map[int]ai.ProgressFunc),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.unitOpts = append([]UnitOption{WithUnitLogger(c.logger)}, c.unitOpts...)
	return c, nil
}

// IsReady reports whether the current unit has finished loading its model.
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && c.unit != nil && !c.unit.Dead()
}

// Initialize loads the model, or joins a load already in flight. Every
// caller that joins receives the progress of the shared load and the same
// outcome. Cancelling ctx stops waiting but does not abort the load.
func (c *Client) Initialize(ctx context.Context, onProgress ai.ProgressFunc) error {
	c.mu.Lock()
	if c.ready && c.unit != nil && !c.unit.Dead() {
		c.mu.Unlock()
		return nil
	}
	listener := c.nextListener
	c.nextListener++
	c.listeners[listener] = onProgress
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.listeners, listener)
		c.mu.Unlock()
	}()

	loadCtx := context.WithoutCancel(ctx)
	ch := c.initGroup.DoChan("init", func() (any, error) {
		return nil, c.load(loadCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.initTimeout)
	defer cancel()

	c.logger.Info("initializing embedding model")
	start := time.Now()

	resp, unit, err := c.roundTrip(ctx, InitModel{ID: uuid.NewString()}, c.broadcast)
	if err != nil {
		c.logger.Error("embedding model initialization failed", "err", err)
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	switch r := resp.(type) {
	case ModelReady:
		c.mu.Lock()
		if c.unit == unit {
			c.ready = true
		}
		c.mu.Unlock()
		c.logger.Info("embedding model ready", "duration", time.Since(start))
		return nil
	default:
		return fmt.Errorf("%w: %s for %s", ErrUnexpectedResponse, r.Type(), TypeInitModel)
	}
}

func (c *Client) broadcast(p ai.Progress) {
	c.mu.Lock()
	listeners := make([]ai.ProgressFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn.Report(p)
	}
}

// Embed computes the embedding of one text. The entity identity is echoed
// back in the result.
func (c *Client) Embed(ctx context.Context, text string, entityType core.EntityType, entityID string) (*EmbeddingResult, error) {
	if err := c.Initialize(ctx, nil); err != nil {
		return nil, err
	}

	resp, _, err := c.roundTrip(ctx, EmbedText{
		ID:         uuid.NewString(),
		Text:       text,
		EntityType: entityType,
		EntityID:   entityID,
	}, nil)
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case EmbeddingResult:
		return &r, nil
	default:
		return nil, fmt.Errorf("%w: %s for %s", ErrUnexpectedResponse, r.Type(), TypeEmbedText)
	}
}

// EmbedBatch computes embeddings for several texts in one round trip.
// Results are in item order.
func (c *Client) EmbedBatch(ctx context.Context, items []BatchItem) ([]EmbeddingResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if err := c.Initialize(ctx, nil); err != nil {
		return nil, err
	}

	resp, _, err := c.roundTrip(ctx, EmbedBatch{ID: uuid.NewString(), Items: items}, nil)
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case BatchResult:
		if len(r.Results) != len(items) {
			return nil, fmt.Errorf("%w: %d results for %d items", ErrUnexpectedResponse, len(r.Results), len(items))
		}
		return r.Results, nil
	default:
		return nil, fmt.Errorf("%w: %s for %s", ErrUnexpectedResponse, r.Type(), TypeEmbedBatch)
	}
}

// Terminate rejects every outstanding request with ErrTerminated and closes
// the unit. The client stays usable; the next request starts a new unit.
func (c *Client) Terminate() error {
	c.mu.Lock()
	unit := c.unit
	pending := c.pending
	c.unit = nil
	c.ready = false
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.ch <- result{err: ErrTerminated}
	}
	if unit == nil {
		return nil
	}
	c.logger.Info("embedding unit terminated", "rejected", len(pending))
	return unit.Close()
}

// Close terminates the client.
func (c *Client) Close() error {
	return c.Terminate()
}

// roundTrip sends req to the current unit and waits for the response that
// completes it. An Error response becomes a *RemoteError.
func (c *Client) roundTrip(ctx context.Context, req Request, progress ai.ProgressFunc) (Response, *Unit, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()
	req = withDeadline(req, deadline)

	unit, err := c.ensureUnit()
	if err != nil {
		return nil, nil, err
	}

	id := req.CorrelationID()
	p := &pendingRequest{unit: unit, ch: make(chan result, 1), progress: progress}

	c.mu.Lock()
	if c.unit != unit {
		c.mu.Unlock()
		return nil, unit, ErrTerminated
	}
	if unit.Dead() {
		c.mu.Unlock()
		return nil, unit, unitError(unit)
	}
	c.pending[id] = p
	c.mu.Unlock()

	if err := unit.send(ctx, req); err != nil {
		c.forget(id)
		return nil, unit, err
	}

	select {
	case res := <-p.ch:
		if res.err != nil {
			return nil, unit, res.err
		}
		if e, ok := res.resp.(Error); ok {
			return nil, unit, &RemoteError{ID: e.ID, Message: e.Message}
		}
		return res.resp, unit, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, unit, ctx.Err()
	}
}

func (c *Client) ensureUnit() (*Unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unit != nil && !c.unit.Dead() {
		return c.unit, nil
	}

	model, err := c.factory()
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	unit, err := NewUnit(model, c.unitOpts...)
	if err != nil {
		_ = model.Close()
		return nil, err
	}
	responses, err := unit.responses(context.Background())
	if err != nil {
		_ = unit.Close()
		return nil, err
	}

	c.unit = unit
	c.ready = false
	go c.dispatch(responses)
	go c.watch(unit)

	c.logger.Debug("embedding unit started")
	return unit, nil
}

// dispatch routes responses to their pending requests. Progress goes to the
// request's progress function; every other variant completes the request.
func (c *Client) dispatch(responses <-chan *message.Message) {
	for msg := range responses {
		msg.Ack()

		resp, err := decodeResponse(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable response", "err", err)
			if id := correlationID(msg); id != "" {
				c.complete(id, result{err: err})
			}
			continue
		}

		switch r := resp.(type) {
		case ModelProgress:
			c.mu.Lock()
			p := c.pending[r.ID]
			c.mu.Unlock()
			if p != nil {
				p.progress.Report(r.ToProgress())
			}
		case ModelReady, EmbeddingResult, BatchResult, Error:
			c.complete(r.CorrelationID(), result{resp: r})
		}
	}
}

func (c *Client) complete(id string, res result) {
	c.mu.Lock()
	p, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok {
		p.ch <- res
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// watch waits for unit to stop. A crash rejects the unit's pending requests
// and drops it, so the next request spawns a replacement.
func (c *Client) watch(unit *Unit) {
	<-unit.Done()
	err := unit.Err()
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.unit == unit {
		c.unit = nil
		c.ready = false
	}
	var rejected []*pendingRequest
	for id, p := range c.pending {
		if p.unit == unit {
			rejected = append(rejected, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range rejected {
		p.ch <- result{err: err}
	}
	if closeErr := unit.Close(); closeErr != nil {
		c.logger.Warn("error closing crashed unit", "err", closeErr)
	}
	c.logger.Error("embedding unit failed", "err", err, "rejected", len(rejected))

	if c.onFatal != nil {
		c.onFatal(err)
	}
}

// withDeadline stamps embedding requests with the caller's deadline.
func withDeadline(req Request, deadline time.Time) Request {
	switch r := req.(type) {
	case EmbedText:
		r.Deadline = deadline.Round(0)
		return r
	case EmbedBatch:
		r.Deadline = deadline.Round(0)
		return r
	default:
		return req
	}
}

func unitError(unit *Unit) error {
	if err := unit.Err(); err != nil {
		return err
	}
	return ErrUnitClosed
}
