package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/infrastructure/resilience"
)

func TestIssueReportMessageRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	in := domain.IssueReport{
		ID:              "r1",
		SessionID:       "s1",
		TurnID:          "t1",
		Message:         "la descrizione di codice_cliente è sbagliata",
		StandaloneQuery: "descrizione errata di codice_cliente",
		CreatedAt:       created,
	}
	data, err := encodeIssueReport(in)
	if err != nil {
		t.Fatalf("encodeIssueReport() error = %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"s1"`) || !strings.Contains(string(data), "09:30:00Z") {
		t.Fatalf("unexpected wire format: %s", data)
	}
	out, err := decodeIssueReport(data)
	if err != nil {
		t.Fatalf("decodeIssueReport() error = %v", err)
	}
	if out.ID != in.ID || out.Message != in.Message || !out.CreatedAt.Equal(created) {
		t.Fatalf("unexpected report: %+v", out)
	}
}

func TestDecodeIssueReportRejectsInvalidPayload(t *testing.T) {
	for _, raw := range []string{"not json", `{"message":"x"}`} {
		if _, err := decodeIssueReport([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable {
		t.Fatalf("expected closed connection to be retryable")
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not retry or trip the breaker: %+v", c)
	}
	if c := classifyNATSError(nats.ErrMaxPayload); c.Retryable {
		t.Fatalf("payload errors are final")
	}

	err := resilience.MarkTemporary("nats.publish", nats.ErrNoServers, classifyNATSError)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrNoServers) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
}

func TestHandleIssueMessage(t *testing.T) {
	var got []domain.IssueReport
	handler := func(_ context.Context, r domain.IssueReport) error {
		got = append(got, r)
		return errors.New("store down")
	}

	handleIssueMessage(context.Background(), DefaultIssueSubject, []byte("garbage"), handler)
	if len(got) != 0 {
		t.Fatalf("undecodable payload must not reach the handler")
	}

	data, err := encodeIssueReport(domain.IssueReport{ID: "r2", SessionID: "s", Message: "manca la tabella contratti"})
	if err != nil {
		t.Fatalf("encodeIssueReport() error = %v", err)
	}
	handleIssueMessage(context.Background(), DefaultIssueSubject, data, handler)
	if len(got) != 1 || got[0].ID != "r2" {
		t.Fatalf("expected handler to receive report, got %+v", got)
	}
}
