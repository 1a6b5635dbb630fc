package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dctwin/internal/core/anomaly"
	"dctwin/internal/domain"
	"dctwin/internal/service"
)

type reconcileCall struct {
	siteID  string
	records []domain.VerificationRecord
	key     string
}

type fakeReconciler struct {
	mu    sync.Mutex
	calls []reconcileCall
	err   error
}

func (f *fakeReconciler) DetectAndSave(_ context.Context, siteID string, records []domain.VerificationRecord, key string) (*service.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reconcileCall{siteID: siteID, records: records, key: key})
	if f.err != nil {
		return nil, f.err
	}
	return &service.SaveResult{Detected: len(records), Saved: len(records)}, nil
}

func (f *fakeReconciler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const scanYAML = `site_id: S1
records:
  - logical_equipment_id: L1
    rack_id: R1
    u_start: 1
    u_height: 2
  - logical_equipment_id: L9
    observed: ABSENT
`

func TestScanReloader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scanYAML), 0644))

	rec := &fakeReconciler{}
	r, err := NewScanReloader(path, "S1", rec, zap.NewNop())
	require.NoError(t, err)

	result, err := r.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Detected)

	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.Equal(t, "S1", call.siteID)
	assert.Equal(t, anomaly.ContentKey([]byte(scanYAML)), call.key)
	require.Len(t, call.records, 2)
	assert.Equal(t, "L1", call.records[0].LogicalEquipmentID)
	assert.Equal(t, domain.ObservedAbsent, call.records[1].Observed)
}

func TestScanReloader_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewScanReloader(filepath.Join(dir, "scan.csv"), "S1", &fakeReconciler{}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing, err := NewScanReloader(filepath.Join(dir, "missing.json"), "S1", &fakeReconciler{}, nil)
	require.NoError(t, err)
	_, err = missing.Reload(context.Background())
	assert.ErrorContains(t, err, "read scan")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("records:\n  - notes: nothing to match\n"), 0644))
	rec := &fakeReconciler{}
	r, err := NewScanReloader(bad, "S1", rec, nil)
	require.NoError(t, err)
	_, err = r.Reload(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, rec.count())

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(scanYAML), 0644))
	failing := &fakeReconciler{err: errors.New("store down")}
	r, err = NewScanReloader(good, "S1", failing, nil)
	require.NoError(t, err)
	_, err = r.Reload(context.Background())
	assert.ErrorContains(t, err, "store down")

	// OnChange swallows the error after logging it
	r.OnChange(context.Background())
	assert.Equal(t, 2, failing.count())
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scanYAML), 0644))

	var calls atomic.Int32
	w := New(path, func(context.Context) { calls.Add(1) }, zap.NewNop()).
		WithDebounce(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// let the watcher register the directory
	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(scanYAML), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "scan.yaml"), func(context.Context) {}, nil)
	assert.Error(t, w.Watch(context.Background()))
}
