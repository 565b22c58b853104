package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	attemptHeader = "x-attempt"
	reasonHeader  = "x-dlq-reason"
)

// channelPublisher is the part of *amqp.Channel the consumer publishes through.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// MessageHandler processes one analysis request. A nil error acks the message;
// an error redelivers it after a backoff until MaxAttempts is reached.
type MessageHandler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	publisher   channelPublisher
	queue       string
	exchange    string
	dlq         string
	workerCount int
	maxAttempts int
	baseDelay   time.Duration
	handler     MessageHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
	publishMu   sync.Mutex
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	MaxAttempts int
	BaseDelayMs int
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Consumer{
		conn:        conn,
		channel:     ch,
		publisher:   ch,
		queue:       cfg.Queue,
		exchange:    cfg.Exchange,
		dlq:         cfg.DLQ,
		workerCount: cfg.WorkerCount,
		maxAttempts: maxAttempts,
		baseDelay:   time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:     handler,
		logger:      logger,
	}, nil
}

// declareTopology sets up the exchange, the analysis/status queues bound to it
// and the DLQ reached through the default exchange.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.QueueBind(cfg.Queue, AnalysisRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind analysis queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	err := c.handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	// shutting down: hand the request back without spending an attempt
	if ctx.Err() != nil {
		_ = d.Nack(false, true)
		return
	}

	attempt := attemptFromHeaders(d.Headers)
	log = log.With(zap.Uint64("delivery_tag", d.DeliveryTag), zap.Int("attempt", attempt))
	if attempt >= c.maxAttempts {
		log.Error("analysis request failed permanently, dead-lettering", zap.Error(err))
		if err := c.deadLetter(ctx, d, attempt, err); err != nil {
			log.Error("failed to dead-letter request, requeueing", zap.Error(err))
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	delay := c.calculateBackoff(attempt)
	log.Warn("analysis request failed, redelivering after backoff", zap.Error(err), zap.Duration("delay", delay))

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return
	}

	if err := c.redeliver(ctx, d, attempt+1); err != nil {
		log.Error("failed to redeliver request, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// redeliver republishes d with an incremented attempt header so the count
// survives the round trip through the broker.
func (c *Consumer) redeliver(ctx context.Context, d amqp.Delivery, attempt int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)

	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.publisher.PublishWithContext(ctx, c.exchange, AnalysisRoutingKey, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

// deadLetter moves an exhausted request to the DLQ through the default
// exchange, keeping its attempt count and the last failure.
func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, attempt int, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)
	headers[reasonHeader] = fmt.Sprintf("attempts exhausted: %v", cause)

	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	return c.publisher.PublishWithContext(ctx, "", c.dlq, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

func attemptFromHeaders(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
