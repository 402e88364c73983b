// Package notify posts an ntfy-style push message the first time a bucket is
// seen.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/s3url"
)

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if endpoint == "" {
		return errors.New("notify: empty endpoint")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

type bucketKey struct {
	name   string
	region string
}

// BucketNotifier is a capture observer that announces each bucket once per
// process lifetime. Sends happen on a background goroutine; when the queue
// is full the announcement is dropped.
type BucketNotifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration

	mu   sync.Mutex
	seen map[bucketKey]bool

	queue     chan string
	done      chan struct{}
	closeOnce sync.Once
}

func NewBucketNotifier(endpoint string, client *http.Client) *BucketNotifier {
	n := &BucketNotifier{
		endpoint: endpoint,
		client:   client,
		timeout:  10 * time.Second,
		seen:     make(map[bucketKey]bool),
		queue:    make(chan string, 64),
		done:     make(chan struct{}),
	}
	go n.sendLoop()
	return n
}

func (n *BucketNotifier) OnCapture(r capture.CapturedRequest) {
	loc := s3url.Parse(r.URL)
	if !loc.Valid() {
		return
	}
	key := bucketKey{name: loc.Bucket, region: loc.Region}

	n.mu.Lock()
	if n.seen[key] {
		n.mu.Unlock()
		return
	}
	n.seen[key] = true
	n.mu.Unlock()

	msg := fmt.Sprintf("New S3 bucket %s (%s) seen in tab %d: %s %s", loc.Bucket, loc.Region, r.TabID, r.Method, r.URL)
	select {
	case n.queue <- msg:
	default:
		slog.Debug("notify queue full, dropping", "bucket", loc.Bucket)
	}
}

func (n *BucketNotifier) sendLoop() {
	defer close(n.done)
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := Send(ctx, n.client, n.endpoint, "BucketSpy", msg); err != nil {
			slog.Warn("bucket notification failed", "error", err)
		}
		cancel()
	}
}

// Close flushes queued notifications and stops the sender. OnCapture must
// not be called afterwards.
func (n *BucketNotifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	<-n.done
}
