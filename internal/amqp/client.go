package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rabbitmq/amqp091-go"

	applog "conti/internal/log"
	"conti/internal/report"
)

// EventsRoutingKey is the routing key ledger events are published with.
const EventsRoutingKey = "ledger.events"

// DirectReplyTo is RabbitMQ's pseudo-queue for RPC replies on the
// requesting channel.
const DirectReplyTo = "amq.rabbitmq.reply-to"

// ErrChannelClosed is returned when the broker closes the delivery stream.
var ErrChannelClosed = errors.New("message channel closed")

// ReportHandler answers one decoded request.
type ReportHandler func(ctx context.Context, req *ReportRequest) *ReportResponse

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int

	// DialAttempts bounds connection retries; zero means 5.
	DialAttempts uint
}

type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewClient dials the broker, retrying connection errors with exponential
// backoff, and declares the exchange and report queue.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 5
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With(applog.FieldComponent, applog.ComponentAMQP),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reconnect drops the current connection and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.closeConn()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	var conn *amqp091.Connection
	err := retry.Do(
		func() error {
			var err error
			conn, err = amqp091.Dial(c.cfg.URL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.DialAttempts),
		retry.RetryIf(isConnectionError),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return exponentialBackoff(int(n))
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "AMQP dial failed, retrying", "attempt", n+1, applog.FieldError, err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()

	if err := c.setup(); err != nil {
		c.closeConn()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	c.logger.InfoContext(ctx, "Connected to AMQP broker", "exchange", c.cfg.Exchange, "queue", c.cfg.Queue)
	return nil
}

func (c *Client) setup() error {
	ch := c.ch()

	err := ch.ExchangeDeclare(
		c.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.cfg.Queue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on the direct exchange
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.Queue, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (c *Client) ch() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// PublishEvent announces a committed ledger write.
func (c *Client) PublishEvent(ctx context.Context, ev *LedgerEvent) error {
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.ch().PublishWithContext(ctx, c.cfg.Exchange, EventsRoutingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	c.logger.DebugContext(ctx, "Published ledger event", "op", ev.Op, "entity", ev.Entity, "id", ev.ID)
	return nil
}

// PublishReportRequest enqueues req with replies routed to replyTo.
func (c *Client) PublishReportRequest(ctx context.Context, req *ReportRequest, replyTo string) error {
	body, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.ch().PublishWithContext(ctx, c.cfg.Exchange, c.cfg.Queue, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     time.Now(),
		CorrelationId: req.ID,
		ReplyTo:       replyTo,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// RequestReport publishes req and waits for the worker's reply on the
// direct reply-to queue. The reply must arrive before ctx ends.
func (c *Client) RequestReport(ctx context.Context, req *ReportRequest) (*ReportResponse, error) {
	ch := c.ch()
	tag := "report-client-" + req.ID
	replies, err := ch.Consume(
		DirectReplyTo, // queue
		tag,           // consumer
		true,          // auto-ack, required for direct reply-to
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume replies: %w", err)
	}
	defer ch.Cancel(tag, false)

	if err := c.PublishReportRequest(ctx, req, DirectReplyTo); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Published report request",
		applog.FieldCorrelationID, req.ID, applog.FieldReportKind, string(req.Kind))

	return awaitReply(ctx, replies, req.ID)
}

// awaitReply returns the first delivery correlated with id. Stray
// replies are dropped.
func awaitReply(ctx context.Context, replies <-chan amqp091.Delivery, id string) (*ReportResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for reply %s: %w", id, ctx.Err())
		case d, ok := <-replies:
			if !ok {
				return nil, ErrChannelClosed
			}
			if d.CorrelationId != id {
				continue
			}
			resp, err := ReportResponseFromJSON(d.Body)
			if err != nil {
				return nil, fmt.Errorf("unmarshal reply: %w", err)
			}
			return resp, nil
		}
	}
}

// ServeReports consumes report requests until ctx ends or the delivery
// stream closes. Malformed requests are answered with an error response
// when a reply queue is set, then rejected without requeue.
func (c *Client) ServeReports(ctx context.Context, handler ReportHandler) error {
	ch := c.ch()
	msgs, err := ch.Consume(
		c.cfg.Queue, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming report requests", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			c.handleDelivery(ctx, ch, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, ch *amqp091.Channel, d amqp091.Delivery, handler ReportHandler) {
	req, err := DecodeRequest(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Rejecting malformed report request",
			applog.FieldCorrelationID, d.CorrelationId, applog.FieldError, err)
		if d.ReplyTo != "" {
			_ = c.reply(ctx, ch, d, ErrorResponse(d.CorrelationId, "", err))
		}
		d.Nack(false, false) // reject and don't requeue
		return
	}

	resp := handler(ctx, req)
	if d.ReplyTo == "" {
		d.Ack(false)
		return
	}
	if err := c.reply(ctx, ch, d, resp); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish report reply",
			applog.FieldCorrelationID, d.CorrelationId, applog.FieldError, err)
		d.Nack(false, true) // reject and requeue
		return
	}
	d.Ack(false)
}

func (c *Client) reply(ctx context.Context, ch *amqp091.Channel, d amqp091.Delivery, resp *ReportResponse) error {
	body, err := resp.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Timestamp:     time.Now(),
		Body:          body,
	})
}

// DecodeRequest parses and validates a request body.
func DecodeRequest(body []byte) (*ReportRequest, error) {
	req, err := ReportRequestFromJSON(body)
	if err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// ErrorResponse builds a response carrying err.
func ErrorResponse(requestID string, kind report.Kind, err error) *ReportResponse {
	return &ReportResponse{
		RequestID:   requestID,
		Kind:        kind,
		Error:       err.Error(),
		GeneratedAt: time.Now(),
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.closeConn()
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

// IsConnectionError reports whether err looks like a lost broker link.
func IsConnectionError(err error) bool {
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChannelClosed) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"eof",
		"broken pipe",
		"use of closed network connection",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
