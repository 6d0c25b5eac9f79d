package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

const (
	DefaultIssueSubject = "catalog.issues.reported"
	workerQueueGroup    = "issue-workers"
	drainFlushTimeout   = 5 * time.Second
)

// IssueHandler processes one decoded report on the worker side.
type IssueHandler func(context.Context, domain.IssueReport) error

type Options struct {
	Executor       *resilience.Executor
	ClientName     string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func (o Options) connectOptions() []nats.Option {
	name := o.ClientName
	if name == "" {
		name = "catalog-assistant"
	}
	connectTimeout := o.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := o.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := o.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	return []nats.Option{
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

// Queue carries issue reports from the chat service to the worker.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string, opts Options) (*Queue, error) {
	if subject == "" {
		subject = DefaultIssueSubject
	}
	conn, err := nats.Connect(url, opts.connectOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: opts.Executor}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIssueReport(ctx context.Context, report domain.IssueReport) error {
	payload, err := encodeIssueReport(report)
	if err != nil {
		return err
	}
	_, err = resilience.Do(ctx, q.executor, "nats.publish", func(context.Context) (struct{}, error) {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return struct{}{}, fmt.Errorf("nats publish %s: %w", q.subject, err)
		}
		return struct{}{}, nil
	}, classifyNATSError)
	return resilience.MarkTemporary("nats.publish", err, classifyNATSError)
}

// SubscribeIssueReports joins the worker queue group and blocks until ctx is
// done, then drains in-flight reports before returning.
func (q *Queue) SubscribeIssueReports(ctx context.Context, handler IssueHandler) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		handleIssueMessage(ctx, msg.Subject, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("issue_subscription_started", "subject", q.subject, "queue_group", workerQueueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainFlushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// handleIssueMessage never fails the subscription: undecodable payloads and
// handler errors are logged and the message is dropped.
func handleIssueMessage(ctx context.Context, subject string, data []byte, handler IssueHandler) {
	report, err := decodeIssueReport(data)
	if err != nil {
		slog.Error("issue_report_decode_failed", "subject", subject, "error", err)
		return
	}
	if err := handler(ctx, report); err != nil {
		slog.Error("issue_report_handler_failed", "report_id", report.ID, "error", err)
	}
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	switch {
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return resilience.Transient
	}
	return resilience.Permanent
}
