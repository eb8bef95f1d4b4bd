package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/domain"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Ledger records identity/profile mismatches as JSON objects so an operator
// or a repair job can reconcile them.
type Ledger struct {
	client objectPutter
	bucket string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		}
	})
}

func NewLedger(client objectPutter, bucket string) *Ledger {
	return &Ledger{client: client, bucket: bucket}
}

// Key layout: reconciliation/<kind>/<yyyy>/<mm>/<dd>/<report id>.json
func reportKey(r domain.OrphanReport) string {
	return fmt.Sprintf("reconciliation/%s/%s/%s.json", r.Kind, r.DetectedAt.UTC().Format("2006/01/02"), r.ReportID)
}

// Report writes r and returns its object URL.
func (l *Ledger) Report(ctx context.Context, r domain.OrphanReport) (string, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal orphan report: %w", err)
	}
	key := reportKey(r)
	_, err = l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", l.bucket, key), nil
}
