package orchestrator

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReportFormat selects the serialization ExportReport writes.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// Report is the JSON/CSV-serializable execution report for one run.
type Report struct {
	Summary   ReportSummary    `json:"summary"`
	Platforms []ReportPlatform `json:"platforms"`
}

type ReportSummary struct {
	TotalPlatforms       int     `json:"total_platforms"`
	Completed            int     `json:"completed"`
	Failed               int     `json:"failed"`
	Skipped              int     `json:"skipped"`
	SuccessRate          float64 `json:"success_rate"`
	TotalRowsProcessed   int     `json:"total_rows_processed"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	StartedAt            string  `json:"started_at,omitempty"`
	EndedAt              string  `json:"ended_at,omitempty"`
}

type ReportPlatform struct {
	PlatformName    string  `json:"platform_name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	RowsProcessed   int     `json:"rows_processed"`
	TablesProcessed int     `json:"tables_processed"`
	RetryCount      int     `json:"retry_count"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// BuildReport projects a monitor snapshot into the report shape.
func BuildReport(summary Summary, outcomes []PlatformOutcome) Report {
	r := Report{
		Summary: ReportSummary{
			TotalPlatforms:       summary.TotalPlatforms,
			Completed:            summary.Completed,
			Failed:               summary.Failed,
			Skipped:              summary.Skipped,
			SuccessRate:          summary.SuccessRate,
			TotalRowsProcessed:   summary.TotalRowsProcessed,
			TotalDurationSeconds: summary.TotalDurationSeconds,
		},
	}
	if !summary.StartedAt.IsZero() {
		r.Summary.StartedAt = summary.StartedAt.Format("2006-01-02T15:04:05.000Z")
	}
	if !summary.EndedAt.IsZero() {
		r.Summary.EndedAt = summary.EndedAt.Format("2006-01-02T15:04:05.000Z")
	}
	for _, o := range outcomes {
		retryCount := o.Attempts - 1
		if retryCount < 0 {
			retryCount = 0
		}
		r.Platforms = append(r.Platforms, ReportPlatform{
			PlatformName:    o.Platform,
			Status:          string(o.Status),
			DurationSeconds: o.Duration.Seconds(),
			RowsProcessed:   o.RowsProcessed,
			TablesProcessed: len(o.TablesDone),
			RetryCount:      retryCount,
			ErrorMessage:    o.Error,
		})
	}
	return r
}

// ExportReport writes report in the given format to dest, a local path or
// an "s3://bucket/key" URI.
func ExportReport(ctx context.Context, report Report, format ReportFormat, dest string) error {
	var buf strings.Builder
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("orchestrator: encode json report: %w", err)
		}
	case FormatCSV:
		if err := writeCSV(&buf, report); err != nil {
			return fmt.Errorf("orchestrator: encode csv report: %w", err)
		}
	default:
		return fmt.Errorf("orchestrator: unknown report format %q", format)
	}

	if bucket, key, ok := parseS3URI(dest); ok {
		return uploadReportToS3(ctx, bucket, key, buf.String())
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("orchestrator: create report directory: %w", err)
		}
	}
	return os.WriteFile(dest, []byte(buf.String()), 0o644)
}

func writeCSV(buf *strings.Builder, report Report) error {
	w := csv.NewWriter(buf)
	defer w.Flush()

	header := []string{"platform_name", "status", "duration_seconds", "rows_processed", "tables_processed", "retry_count", "error_message"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, p := range report.Platforms {
		row := []string{
			p.PlatformName,
			p.Status,
			strconv.FormatFloat(p.DurationSeconds, 'f', 3, 64),
			strconv.Itoa(p.RowsProcessed),
			strconv.Itoa(p.TablesProcessed),
			strconv.Itoa(p.RetryCount),
			p.ErrorMessage,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func parseS3URI(dest string) (bucket, key string, ok bool) {
	const prefix = "s3://"
	if !strings.HasPrefix(dest, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(dest, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// uploadReportToS3 uploads the report body via the AWS SDK's standard
// credential chain (static credentials or the default chain, optional
// custom endpoint for MinIO-style local testing left to
// ADFLOW_REPORT_S3_ENDPOINT).
func uploadReportToS3(ctx context.Context, bucket, key, body string) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: load aws config: %w", err)
	}

	var client *s3.Client
	if endpoint := os.Getenv("ADFLOW_REPORT_S3_ENDPOINT"); endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("orchestrator: upload report to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
