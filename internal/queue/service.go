package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/image-thumbnailer/internal/config"
)

const reconnectDelay = 5 * time.Second

// Service owns the broker connection and runs cfg.Workers consumers, each on
// its own channel.
type Service struct {
	cfg    *config.WorkerConfig
	worker *Worker

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewService creates a Service. Call Run to start consuming.
func NewService(cfg *config.WorkerConfig, worker *Worker) *Service {
	return &Service{cfg: cfg, worker: worker}
}

// Run declares the request queue and status exchange, then consumes until
// ctx is canceled. Only the initial connection and declarations are fatal to
// Run; later broker failures are retried.
func (s *Service) Run(ctx context.Context) error {
	conn, err := s.connection()
	if err != nil {
		return err
	}
	defer s.close()

	ch, err := OpenChannel(conn)
	if err != nil {
		return err
	}
	if _, err := DeclareQueue(ch, s.cfg.RabbitMqQueue); err != nil {
		ch.Close()
		return err
	}
	if err := DeclareStatusExchange(ch, s.cfg.StatusExchange); err != nil {
		ch.Close()
		return err
	}
	ch.Close()

	log.Info().
		Str("queue", s.cfg.RabbitMqQueue).
		Str("exchange", s.cfg.StatusExchange).
		Int("workers", s.cfg.Workers).
		Msg("Starting consumers")

	g, gctx := errgroup.WithContext(ctx)
	for i := range s.cfg.Workers {
		n := i + 1
		g.Go(func() error {
			s.consume(gctx, n)
			return nil
		})
	}
	err = g.Wait()
	log.Info().Msg("All consumers stopped")
	return err
}

// consume runs one consumer, recreating its channel (and the shared
// connection) whenever the broker drops it.
func (s *Service) consume(ctx context.Context, n int) {
	logger := log.With().Str("queue", s.cfg.RabbitMqQueue).Int("worker", n).Logger()
	ctx = logger.WithContext(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		ch, msgs, err := s.openConsumer()
		if err != nil {
			logger.Warn().Err(err).Dur("retryIn", reconnectDelay).Msg("Failed to start consumer")
			if !sleep(ctx, reconnectDelay) {
				return
			}
			continue
		}
		logger.Info().Msg("Worker started, waiting for deliveries")

		if !s.drain(ctx, ch, msgs) {
			ch.Close()
			return
		}
		logger.Warn().Msg("Delivery channel closed, reconnecting")
		ch.Close()
	}
}

// drain handles deliveries until msgs closes (true) or ctx is done (false).
func (s *Service) drain(ctx context.Context, ch *amqp.Channel, msgs <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case d, ok := <-msgs:
			if !ok {
				return true
			}
			s.worker.HandleDelivery(ctx, ch, d)
		}
	}
}

func (s *Service) openConsumer() (*amqp.Channel, <-chan amqp.Delivery, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, nil, err
	}
	ch, err := OpenChannel(conn)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := Consume(ch, s.cfg.RabbitMqQueue, 1)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}
	return ch, msgs, nil
}

// connection returns the shared connection, redialing if it has closed.
func (s *Service) connection() (*amqp.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && !s.conn.IsClosed() {
		return s.conn, nil
	}
	conn, err := Dial(s.cfg.RabbitMqURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Service) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
