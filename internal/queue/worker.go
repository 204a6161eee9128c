package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

// StatusPattern is the pattern field of every status message.
const StatusPattern = "status"

const defaultPublishTimeout = 5 * time.Second

// Handler runs one invocation. *thumbnail.Generator satisfies it.
type Handler interface {
	Handle(ctx context.Context, event thumbnail.Event) (thumbnail.Response, thumbnail.ResizeResult)
}

// Publisher publishes one message. *amqp.Channel satisfies it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StatusMessage is published after each delivery has been processed.
type StatusMessage struct {
	Pattern string `json:"pattern"`
	Data    Status `json:"data"`
}

// Status carries the invocation Response under the delivery's id.
type Status struct {
	ID         string `json:"id"`
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Body       string `json:"body"`
}

// ProcessingError is returned by Process when a delivery could not be
// completed. Requeue tells the caller how to nack it.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (e *ProcessingError) Error() string { return e.Err.Error() }
func (e *ProcessingError) Unwrap() error { return e.Err }

// Worker turns deliveries into invocations and status messages.
type Worker struct {
	handler        Handler
	exchange       string
	routingKey     string
	publishTimeout time.Duration
	onResult       func(thumbnail.ResizeResult)
	newID          func() string
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithResultHook registers fn to observe every invocation result, e.g. for
// metrics.
func WithResultHook(fn func(thumbnail.ResizeResult)) WorkerOption {
	return func(w *Worker) { w.onResult = fn }
}

// WithPublishTimeout bounds each status publish.
func WithPublishTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.publishTimeout = d }
}

// NewWorker creates a Worker that publishes status messages to exchange with
// routingKey.
func NewWorker(handler Handler, exchange, routingKey string, opts ...WorkerOption) *Worker {
	w := &Worker{
		handler:        handler,
		exchange:       exchange,
		routingKey:     routingKey,
		publishTimeout: defaultPublishTimeout,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process runs the invocation carried by d and publishes its status through
// pub. It does not ack or nack d.
func (w *Worker) Process(ctx context.Context, pub Publisher, d amqp.Delivery) error {
	var event thumbnail.Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return &ProcessingError{Err: fmt.Errorf("malformed delivery: %w", err)}
	}

	id := d.CorrelationId
	if id == "" {
		id = w.newID()
	}
	logger := log.Ctx(ctx).With().Str("correlationId", id).Logger()
	ctx = logger.WithContext(ctx)

	resp, result := w.handler.Handle(ctx, event)
	if w.onResult != nil {
		w.onResult(result)
	}

	body, err := json.Marshal(StatusMessage{
		Pattern: StatusPattern,
		Data: Status{
			ID:         id,
			StatusCode: resp.StatusCode,
			Success:    resp.Success,
			Body:       resp.Body,
		},
	})
	if err != nil {
		return &ProcessingError{Err: fmt.Errorf("encode status: %w", err)}
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()
	err = pub.PublishWithContext(pubCtx, w.exchange, w.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: id,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return &ProcessingError{Err: fmt.Errorf("publish status: %w", err), Requeue: true}
	}
	logger.Debug().Bool("success", resp.Success).Msg("Published status")
	return nil
}

// HandleDelivery processes d and settles it: ack on success, nack otherwise
// with requeue as reported by the ProcessingError.
func (w *Worker) HandleDelivery(ctx context.Context, pub Publisher, d amqp.Delivery) {
	err := w.Process(ctx, pub, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Ctx(ctx).Warn().Err(ackErr).Uint64("deliveryTag", d.DeliveryTag).Msg("Failed to ack delivery")
		}
		return
	}

	var procErr *ProcessingError
	requeue := errors.As(err, &procErr) && procErr.Requeue
	log.Ctx(ctx).Error().Err(err).
		Uint64("deliveryTag", d.DeliveryTag).
		Bool("requeue", requeue).
		Msg("Error processing delivery")
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Ctx(ctx).Warn().Err(nackErr).Uint64("deliveryTag", d.DeliveryTag).Msg("Failed to nack delivery")
	}
}
