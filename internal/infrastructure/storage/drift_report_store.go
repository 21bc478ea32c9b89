package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/erp/stockledger/internal/domain/stock"
	"go.uber.org/zap"
)

// DriftReportStore writes reconciliation reports as JSON objects under
// <prefix>/<tenant>/<yyyy>/<mm>/<dd>/<report id>.json
type DriftReportStore struct {
	api    ObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewDriftReportStore creates the store
func NewDriftReportStore(api ObjectAPI, bucket, prefix string, logger *zap.Logger) *DriftReportStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriftReportStore{api: api, bucket: bucket, prefix: prefix, logger: logger}
}

// ReportKey returns the object key of a report
func (s *DriftReportStore) ReportKey(report *stock.DriftReport) string {
	day := report.GeneratedAt.UTC()
	return path.Join(s.prefix, report.TenantID.String(),
		fmt.Sprintf("%04d", day.Year()), fmt.Sprintf("%02d", day.Month()), fmt.Sprintf("%02d", day.Day()),
		report.ID.String()+".json")
}

// StoreDriftReport uploads the report and returns its object key
func (s *DriftReportStore) StoreDriftReport(ctx context.Context, report *stock.DriftReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode drift report: %w", err)
	}
	key := s.ReportKey(report)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload drift report %s: %w", key, err)
	}
	s.logger.Info("drift report exported",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("drifts", len(report.Drifts)),
	)
	return key, nil
}
