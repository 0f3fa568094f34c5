package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the backup object.
type S3Config struct {
	Bucket   string
	Prefix   string // object key prefix, e.g. "seatcheck/"
	Region   string
	Endpoint string // non-empty for MinIO and other S3-compatible stores

	// Daily also writes a dated copy (<prefix>YYYY-MM-DD/records.jsonl) so
	// earlier days survive later overwrites of the latest object.
	Daily bool
}

// S3Destination writes JSONL data to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	cfg    S3Config
	now    func() time.Time
}

// NewS3Destination creates an S3 destination. If cfg.Endpoint is set,
// path-style addressing is enabled.
func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

func (d *S3Destination) Name() string { return "s3://" + d.cfg.Bucket + "/" + d.cfg.Prefix }

// Keys returns the object keys a Write will upload to.
func (d *S3Destination) Keys() []string {
	keys := []string{path.Join(d.cfg.Prefix, "latest", "records.jsonl")}
	if d.cfg.Daily {
		keys = append(keys, path.Join(d.cfg.Prefix, d.now().UTC().Format("2006-01-02"), "records.jsonl"))
	}
	return keys
}

// Write uploads data to every key from Keys.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	for _, key := range d.Keys() {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/x-ndjson"),
		})
		if err != nil {
			return fmt.Errorf("s3 put object %s: %w", key, err)
		}
	}
	return nil
}
