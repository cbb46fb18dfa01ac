package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/quota"
)

type fakeFetcher struct {
	calls atomic.Int32
	slots []string
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, videoID, destDir string) (string, error) {
	f.calls.Add(1)
	f.slots = append(f.slots, destDir)
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(destDir, "source.mp4")
	return p, os.WriteFile(p, []byte("source"), 0644)
}

type fakeCodec struct {
	extractCalls atomic.Int32
	extractErr   error
	lastStart    float64
	lastEnd      float64
}

func (c *fakeCodec) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	return &media.ProbeResult{}, nil
}

func (c *fakeCodec) Extract(ctx context.Context, src, dst string, start, end float64) error {
	c.extractCalls.Add(1)
	c.lastStart, c.lastEnd = start, end
	if c.extractErr != nil {
		return c.extractErr
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("clip"), 0644)
}

func (c *fakeCodec) Normalize(ctx context.Context, src, dst string) error       { return nil }
func (c *fakeCodec) Blank(ctx context.Context, dst string, seconds float64) error { return nil }
func (c *fakeCodec) Concat(ctx context.Context, segments []string, audioPath, dst string) error {
	return nil
}

func setup(t *testing.T, limit int) (*Acquirer, *fakeFetcher, *fakeCodec, *quota.Tracker, string, string) {
	t.Helper()
	root := t.TempDir()
	scratch := filepath.Join(root, "scratch")
	clips := filepath.Join(root, "clips")
	f := &fakeFetcher{}
	c := &fakeCodec{}
	q := quota.NewTracker(limit)
	return New(q, f, c, scratch, clips, nil), f, c, q, scratch, clips
}

func TestAcquire_Success(t *testing.T) {
	a, f, c, q, scratch, clips := setup(t, 10)

	path, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 2, 5)
	require.NoError(t, err)
	slotID := filepath.Base(f.slots[0])
	assert.Equal(t, filepath.Join(clips, "clip_v1aaaaaaaaa_2000_"+slotID[:8]+".mp4"), path)
	assert.FileExists(t, path)

	assert.Equal(t, 1, q.Consumed())
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 2.0, c.lastStart)
	assert.Equal(t, 5.0, c.lastEnd)

	// the scratch slot is freed after extraction
	require.Len(t, f.slots, 1)
	assert.Equal(t, scratch, filepath.Dir(f.slots[0]))
	assert.NoDirExists(t, f.slots[0])
}

func TestAcquire_UniqueSlots(t *testing.T) {
	a, f, _, _, _, _ := setup(t, 10)

	_, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 1, 2)
	require.NoError(t, err)
	_, err = a.Acquire(context.Background(), "v1aaaaaaaaa", 3, 4)
	require.NoError(t, err)

	require.Len(t, f.slots, 2)
	assert.NotEqual(t, f.slots[0], f.slots[1])
}

func TestAcquire_QuotaDenied(t *testing.T) {
	a, f, c, q, _, _ := setup(t, 0)

	_, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 2, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, ErrQuotaDenied)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, int32(0), c.extractCalls.Load())
	assert.Equal(t, 0, q.Consumed())
}

func TestAcquire_FetchFailure(t *testing.T) {
	a, f, c, q, _, _ := setup(t, 10)
	f.err = errors.New("video unavailable")

	_, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 2, 5)
	var aerr *AcquisitionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, SourceUnavailable, aerr.Kind)
	assert.Equal(t, "v1aaaaaaaaa", aerr.VideoID)
	assert.False(t, errors.Is(err, ErrProcessingFailed))
	assert.Equal(t, int32(0), c.extractCalls.Load())
	assert.Equal(t, 1, q.Consumed(), "quota is charged before the call")
}

func TestAcquire_ExtractFailure(t *testing.T) {
	a, f, c, _, _, clips := setup(t, 10)
	c.extractErr = errors.New("ffmpeg exited 1")

	_, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 2, 5)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.NoFileExists(t, filepath.Join(clips, ClipName("v1aaaaaaaaa", 2, filepath.Base(f.slots[0]))))
	assert.NoDirExists(t, f.slots[0])
}

func TestAcquire_EmptyRange(t *testing.T) {
	a, f, _, q, _, _ := setup(t, 10)

	_, err := a.Acquire(context.Background(), "v1aaaaaaaaa", 5, 5)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, 0, q.Consumed())
}

func TestClipName(t *testing.T) {
	assert.Equal(t, "clip_abc_0_1234abcd.mp4", ClipName("abc", 0, "1234abcd-5678"))
	assert.Equal(t, "clip_abc_12345_ff.mp4", ClipName("abc", 12.345, "ff"))
}

func TestAcquire_SameRangeGetsSeparateClips(t *testing.T) {
	a, _, c, _, _, _ := setup(t, 10)
	ctx := context.Background()

	first, err := a.Acquire(ctx, "v1aaaaaaaaa", 2, 5)
	require.NoError(t, err)

	second, err := a.Acquire(ctx, "v1aaaaaaaaa", 2, 5)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// a failed extraction of the same range leaves earlier clips alone
	c.extractErr = errors.New("ffmpeg exited 1")
	_, err = a.Acquire(ctx, "v1aaaaaaaaa", 2, 5)
	require.ErrorIs(t, err, ErrProcessingFailed)
	assert.FileExists(t, first)
	assert.FileExists(t, second)
}
