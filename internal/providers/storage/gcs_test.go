package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBucket struct {
	failures int
	err      error
	calls    []string
	data     map[string][]byte
}

func (b *fakeBucket) put(_ context.Context, object string, data []byte, _ string) error {
	b.calls = append(b.calls, object)
	if len(b.calls) <= b.failures {
		return b.err
	}
	if b.data == nil {
		b.data = map[string][]byte{}
	}
	b.data[object] = data
	return nil
}

func newTestProvider(bucket *fakeBucket, prefix string) (*GCSProvider, *clock.FakeTimer) {
	p := newGCSProvider(Config{Bucket: "archive", Prefix: prefix}, nil, zap.NewNop())
	p.put = bucket.put
	timer := clock.NewFakeTimer(clock.NewFakeClock(time.Date(2024, 2, 1, 4, 0, 0, 0, time.UTC)))
	p.timer = func() backoff.Timer { return timer }
	return p, timer
}

func TestPutRetriesWithDoublingWait(t *testing.T) {
	bucket := &fakeBucket{failures: 2, err: errors.New("503")}
	p, timer := newTestProvider(bucket, "/invoices/")

	uri, err := p.Put(context.Background(), "2024-01/acme_2024-01.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/invoices/2024-01/acme_2024-01.pdf", uri)
	assert.Len(t, bucket.calls, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Waits())
	assert.Equal(t, []byte("%PDF"), bucket.data["invoices/2024-01/acme_2024-01.pdf"])
}

func TestPutGivesUpAfterMaxAttempts(t *testing.T) {
	bucket := &fakeBucket{failures: 10, err: errors.New("503")}
	p, _ := newTestProvider(bucket, "")

	_, err := p.Put(context.Background(), "a.pdf", nil, "application/pdf")
	require.Error(t, err)
	assert.Len(t, bucket.calls, MaxAttempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestPutDoesNotRetryMissingBucket(t *testing.T) {
	bucket := &fakeBucket{failures: 10, err: gcs.ErrBucketNotExist}
	p, _ := newTestProvider(bucket, "")

	_, err := p.Put(context.Background(), "a.pdf", nil, "application/pdf")
	assert.ErrorIs(t, err, gcs.ErrBucketNotExist)
	assert.Len(t, bucket.calls, 1)
}

func TestNewGCSRequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), Config{}, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingBucket)
}

func TestNoOpProvider(t *testing.T) {
	uri, err := NoOpProvider{}.Put(context.Background(), "a.pdf", nil, "")
	require.NoError(t, err)
	assert.Empty(t, uri)
}
