package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/cdrbill/internal/observability/metrics"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	// MaxAttempts is the number of uploads tried before giving up.
	MaxAttempts = 3

	firstRetryWait = time.Second
)

var ErrMissingBucket = errors.New("missing_bucket")

type putFunc func(ctx context.Context, object string, data []byte, contentType string) error

type Config struct {
	Bucket          string
	Prefix          string
	CredentialsJSON string
}

// GCSProvider uploads objects to a Google Cloud Storage bucket, retrying
// failed uploads with a doubling wait.
type GCSProvider struct {
	cfg     Config
	client  *gcs.Client
	put     putFunc
	timer   func() backoff.Timer
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewGCS opens a storage client. Explicit credentials take precedence over
// application default credentials.
func NewGCS(ctx context.Context, cfg Config, m *metrics.Metrics, log *zap.Logger) (*GCSProvider, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrMissingBucket
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	p := newGCSProvider(cfg, m, log)
	p.client = client
	p.put = p.write
	return p, nil
}

func newGCSProvider(cfg Config, m *metrics.Metrics, log *zap.Logger) *GCSProvider {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &GCSProvider{
		cfg:     cfg,
		metrics: m,
		log:     log.Named("storage.gcs"),
	}
}

func (p *GCSProvider) Name() string {
	return "gcs"
}

// Put uploads data under prefix/key and returns its gs:// URI.
func (p *GCSProvider) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	object := path.Join(p.cfg.Prefix, strings.TrimLeft(key, "/"))

	attempt := 0
	op := func() error {
		attempt++
		err := p.put(ctx, object, data, contentType)
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warn("storage.upload_retry",
			zap.String("object", object),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	var timer backoff.Timer
	if p.timer != nil {
		timer = p.timer()
	}
	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(uploadBackOff(), ctx), notify, timer)
	p.metrics.RecordArchiveUpload(ctx, p.Name(), err)
	if err != nil {
		return "", fmt.Errorf("upload %s after %d attempts: %w", object, attempt, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", p.cfg.Bucket, object)
	p.log.Info("storage.uploaded", zap.String("uri", uri), zap.Int("attempt", attempt), zap.Int("bytes", len(data)))
	return uri, nil
}

// uploadBackOff waits 1s then 2s between the three attempts.
func uploadBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = firstRetryWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxAttempts-1)
}

func (p *GCSProvider) write(ctx context.Context, object string, data []byte, contentType string) error {
	w := p.client.Bucket(p.cfg.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (p *GCSProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
