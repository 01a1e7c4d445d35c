package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
	"github.com/gucchon001/invoice-processing-system-sub001/internal/infrastructure/resilience"
)

// PublishError is a failed publish on one subject.
type PublishError struct {
	Subject string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("nats publish %s: %v", e.Subject, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// rejectedMessage reports errors caused by the message itself; resending cannot help.
func rejectedMessage(err error) bool {
	return errors.Is(err, nats.ErrMaxPayload) ||
		errors.Is(err, nats.ErrBadSubject) ||
		errors.Is(err, nats.ErrInvalidMsg)
}

func brokerUnavailable(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrDisconnected)
}

// classifierFor returns the retry policy for a subject. Batch requests are retried
// while the broker is away; progress events are best effort and sent once.
func (q *Queue) classifierFor(subject string) resilience.ErrorClassifier {
	retryUnavailable := subject == q.batchSubject
	return func(err error) resilience.ErrorClassification {
		switch {
		case err == nil:
			return resilience.ErrorClassification{}
		case errors.Is(err, context.Canceled):
			return resilience.ErrorClassification{}
		case rejectedMessage(err):
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		case resilience.IsCircuitOpen(err), brokerUnavailable(err):
			return resilience.ErrorClassification{Retryable: retryUnavailable, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
}

// publishError maps a failed batch publish onto the domain error kinds.
func (q *Queue) publishError(subject string, err error) error {
	if err == nil {
		return nil
	}
	if rejectedMessage(err) {
		return domain.WrapError(domain.ErrInvalidInput, "publish "+subject, err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) || brokerUnavailable(err) {
		return domain.WrapError(domain.ErrTemporary, "publish "+subject, err)
	}
	return err
}

// publish sends payload through the executor under a per-subject breaker.
func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return &PublishError{Subject: subject, Err: err}
		}
		return nil
	}
	if q.executor == nil {
		return call(ctx)
	}
	return q.executor.Execute(ctx, "nats.publish."+subject, call, q.classifierFor(subject))
}
