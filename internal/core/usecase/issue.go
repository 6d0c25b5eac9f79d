package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/core/ports"
)

// IssueReportUseCase stores reports delivered by the queue for manual review.
type IssueReportUseCase struct {
	store ports.IssueStore
}

func NewIssueReportUseCase(store ports.IssueStore) *IssueReportUseCase {
	return &IssueReportUseCase{store: store}
}

func (uc *IssueReportUseCase) HandleIssueReport(ctx context.Context, report domain.IssueReport) error {
	if strings.TrimSpace(report.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle issue report", errors.New("report id is empty"))
	}
	if strings.TrimSpace(report.Message) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "handle issue report", errors.New("report message is empty"))
	}
	if err := uc.store.SaveIssueReport(ctx, report); err != nil {
		return err
	}
	slog.Info("issue_report_stored", "report_id", report.ID, "session_id", report.SessionID)
	return nil
}
