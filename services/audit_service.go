package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// AuditService exports wallet reconciliation reports to object storage.
type AuditService struct {
	Wallets  *WalletService
	Uploader Uploader
	Log      *logrus.Logger
}

func NewAuditService(wallets *WalletService, uploader Uploader, log *logrus.Logger) *AuditService {
	return &AuditService{Wallets: wallets, Uploader: uploader, Log: log}
}

// ExportReconciliation runs ReconcileAll and uploads the report as JSON under
// reports/reconciliation/YYYY/MM/DD/<unix>.json.
func (s *AuditService) ExportReconciliation(ctx context.Context) (*ReconciliationReport, string, error) {
	report, err := s.Wallets.ReconcileAll(ctx)
	if err != nil {
		return nil, "", err
	}
	if s.Uploader == nil {
		return report, "", nil
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal reconciliation report")
	}
	key := fmt.Sprintf("reports/reconciliation/%s/%d.json",
		report.GeneratedAt.Format("2006/01/02"), report.GeneratedAt.Unix())
	url, err := s.Uploader.PutObject(ctx, key, body, "application/json")
	if err != nil {
		return nil, "", errors.Wrap(err, "upload reconciliation report")
	}

	s.Log.WithFields(logrus.Fields{"key": key, "drifted": len(report.Drifted)}).Info("reconciliation report exported")
	return report, url, nil
}
