// Package watcher reconciles a verification scan file whenever it changes.
package watcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"dctwin/internal/codec"
	"dctwin/internal/core/anomaly"
	"dctwin/internal/domain"
	"dctwin/internal/service"
)

// Watcher watches a file for changes
type Watcher struct {
	path     string
	onChange func(ctx context.Context)
	debounce time.Duration
	logger   *zap.Logger
}

// New creates a new file watcher
func New(path string, onChange func(ctx context.Context), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger,
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Watch starts watching the file for changes.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory so editors that replace the file are still seen
	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)

	if err := fw.Add(dir); err != nil {
		return err
	}

	w.logger.Info("watching scan file", zap.String("path", w.path))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stopTimer := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Rapid writes collapse into one callback after the quiet period
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.logger.Debug("scan file changed", zap.String("path", w.path))
				w.onChange(ctx)
			})
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			stopTimer()
			return ctx.Err()
		}
	}
}

// Reconciler persists anomalies for a scan
type Reconciler interface {
	DetectAndSave(ctx context.Context, siteID string, records []domain.VerificationRecord, idempotencyKey string) (*service.SaveResult, error)
}

// ScanReloader reads a scan file and reconciles it against one site.
// The file content hash is the idempotency key, so an unchanged file
// saves nothing the second time.
type ScanReloader struct {
	path       string
	siteID     string
	parser     codec.ScanImporter
	reconciler Reconciler
	logger     *zap.Logger
}

// NewScanReloader picks the scan parser from the file extension
func NewScanReloader(path, siteID string, reconciler Reconciler, logger *zap.Logger) (*ScanReloader, error) {
	parser, err := codec.ForFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanReloader{
		path:       path,
		siteID:     siteID,
		parser:     parser,
		reconciler: reconciler,
		logger:     logger,
	}, nil
}

// Reload reconciles the current file content
func (r *ScanReloader) Reload(ctx context.Context) (*service.SaveResult, error) {
	content, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read scan: %w", err)
	}

	records, err := r.parser.ParseScan(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	result, err := r.reconciler.DetectAndSave(ctx, r.siteID, records, anomaly.ContentKey(content))
	if err != nil {
		return nil, err
	}

	r.logger.Info("scan reconciled",
		zap.String("path", r.path),
		zap.String("site_id", r.siteID),
		zap.Int("records", len(records)),
		zap.Int("detected", result.Detected),
		zap.Int("saved", result.Saved),
	)
	return result, nil
}

// OnChange adapts Reload to a Watcher callback, logging failures
func (r *ScanReloader) OnChange(ctx context.Context) {
	if _, err := r.Reload(ctx); err != nil {
		r.logger.Error("scan reconcile failed", zap.String("path", r.path), zap.Error(err))
	}
}
