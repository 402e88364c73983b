// Package storage writes an append-only JSONL journal of captured requests.
// The journal is never read back by BucketSpy.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/capture"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal handles async writing of captures to date-organized JSONL files.
type Journal struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan capture.CapturedRequest
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewJournal starts an async journal rooted at baseDir.
func NewJournal(baseDir string, bufferSize int, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan capture.CapturedRequest, bufferSize),
		done:      make(chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

// OnCapture queues r for writing. It never blocks the capture engine.
func (j *Journal) OnCapture(r capture.CapturedRequest) {
	if err := j.Write(r); err != nil {
		slog.Warn("Journal write dropped", "id", r.ID, "error", err)
	}
}

// Write queues a record for async writing
func (j *Journal) Write(r capture.CapturedRequest) error {
	select {
	case <-j.done:
		return fmt.Errorf("journal is closed")
	default:
	}
	select {
	case j.writeCh <- r:
		return nil
	default:
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the journal and flushes pending records.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() { close(j.done) })
	j.wg.Wait()

	// Drain remaining items with timeout
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r := <-j.writeCh:
			j.writeRecord(r)
		case <-timeout:
			slog.Warn("Journal close timeout, some records may be lost")
			return j.closeLogger()
		default:
			return j.closeLogger()
		}
	}
}

func (j *Journal) closeLogger() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case r := <-j.writeCh:
			j.writeRecord(r)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(r capture.CapturedRequest) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("Failed to marshal capture", "id", r.ID, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("Failed to open journal file", "error", err)
			return
		}
	}

	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write capture", "id", r.ID, "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		j.logger.Close()
		j.logger = nil
	}

	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	filename := filepath.Join(dir, "captures.jsonl")
	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	j.currentDate = date
	slog.Info("Opened journal file", "file", filename)
	return nil
}
