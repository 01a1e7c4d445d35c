package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
)

const (
	DefaultBatchSubject    = "invoices.batch"
	DefaultProgressSubject = "invoices.progress"
	workerQueueGroup       = "invoice-workers"
)

// Queue carries batch requests to workers and publishes progress events.
type Queue struct {
	conn            *nats.Conn
	batchSubject    string
	progressSubject string
	executor        *resilience.Executor
}

type Options struct {
	BatchSubject         string
	ProgressSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-processing"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:            conn,
		batchSubject:    subjectOrDefault(options.BatchSubject, DefaultBatchSubject),
		progressSubject: subjectOrDefault(options.ProgressSubject, DefaultProgressSubject),
		executor:        options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishBatchRequest(ctx context.Context, req ports.BatchRequest) error {
	payload, err := encodeBatchRequest(req)
	if err != nil {
		return err
	}
	return q.publishError(q.batchSubject, q.publish(ctx, q.batchSubject, payload))
}

// SubscribeBatchRequests blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeBatchRequests(ctx context.Context, handler func(context.Context, ports.BatchRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.batchSubject, workerQueueGroup, func(msg *nats.Msg) {
		handleBatchMessage(ctx, msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// handleBatchMessage runs one delivered request. Requests arriving after shutdown
// began are logged and dropped; the publisher owns redelivery.
func handleBatchMessage(ctx context.Context, subject string, data []byte, handler func(context.Context, ports.BatchRequest) error) {
	req, err := decodeBatchRequest(data)
	if err != nil {
		slog.Warn("batch_request_rejected", "subject", subject, "error", err)
		return
	}
	if ctx.Err() != nil {
		slog.Warn("batch_request_dropped", "subject", subject, "request_id", req.RequestID, "keys", len(req.Keys), "reason", "worker shutting down")
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, req); err != nil {
		slog.Error("batch_request_failed", "subject", subject, "request_id", req.RequestID, "error", err)
	}
}

// OnProgress publishes each progress entry. Publish failures are logged and dropped.
func (q *Queue) OnProgress(ctx context.Context, event domain.ProgressEvent) {
	payload, err := encodeProgress(event)
	if err != nil {
		slog.Warn("progress_encode_failed", "run_id", event.RunID, "error", err)
		return
	}
	// terminal events of a cancelled run are still published
	if err := q.publish(context.WithoutCancel(ctx), q.progressSubject, payload); err != nil {
		slog.Warn("progress_publish_failed",
			"subject", q.progressSubject,
			"run_id", event.RunID,
			"file_index", event.FileIndex,
			"circuit_open", resilience.IsCircuitOpen(err),
			"error", err,
		)
	}
}

func subjectOrDefault(subject, fallback string) string {
	if subject == "" {
		return fallback
	}
	return subject
}
