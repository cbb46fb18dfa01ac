package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
)

var fastRetry = &RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}

func TestSearch_BuildsQueryAndReturnsOrderedIDs(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query())
		assert.Equal(t, "/search", r.URL.Path)
		fmt.Fprint(w, `{"items":[
			{"id":{"videoId":"v1aaaaaaaaa"}},
			{"id":{"channelId":"c1"}},
			{"id":{"videoId":"v2bbbbbbbbb"}},
			{"id":{"videoId":"v3ccccccccc"}}
		]}`)
	}))
	defer srv.Close()

	c := NewSearchClient(SearchConfig{BaseURL: srv.URL, APIKey: "KEY", Language: "en", Retry: fastRetry})
	ids, err := c.Search(context.Background(), "A cat sat", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1aaaaaaaaa", "v2bbbbbbbbb"}, ids)

	q := got.Load().(url.Values)
	assert.Equal(t, []string{"snippet"}, q["part"])
	assert.Equal(t, []string{"video"}, q["type"])
	assert.Equal(t, []string{"A cat sat"}, q["q"])
	assert.Equal(t, []string{"2"}, q["maxResults"])
	assert.Equal(t, []string{"KEY"}, q["key"])
	assert.Equal(t, []string{"en"}, q["relevanceLanguage"])
}

func TestSearch_QuotaForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"errors":[{"reason":"quotaExceeded"}]}}`)
	}))
	defer srv.Close()

	c := NewSearchClient(SearchConfig{BaseURL: srv.URL, APIKey: "KEY", Retry: fastRetry})
	_, err := c.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderQuota)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusForbidden, perr.StatusCode)
	assert.False(t, perr.IsRetryable())
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":{"videoId":"v1aaaaaaaaa"}}]}`)
	}))
	defer srv.Close()

	c := NewSearchClient(SearchConfig{BaseURL: srv.URL, Retry: fastRetry})
	ids, err := c.Search(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1aaaaaaaaa"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_ExhaustedRetriesIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewSearchClient(SearchConfig{BaseURL: srv.URL, Retry: fastRetry})
	_, err := c.Search(context.Background(), "x", 5)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.True(t, perr.IsRetryable())
}

func watchPage(host, player string) string {
	return `<html><script>var ytInitialPlayerResponse = ` + strings.ReplaceAll(player, "HOST", host) + `;var meta = {};</script></html>`
}

const timedTextXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.5" dur="1.5">hello there</text>` +
	`<text start="2" dur="3">a cat sat &amp;amp; purred</text>` +
	`<text start="5" dur="1"> </text>` +
	`<text start="6" dur="2">&lt;i&gt;music&lt;/i&gt;</text>` +
	`</transcript>`

func newTranscriptServer(t *testing.T, player string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, watchPage(r.Host, player))
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, timedTextXML)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscript_ParsesSegments(t *testing.T) {
	player := `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
		{"baseUrl":"http://HOST/api/timedtext?v=x&exp=xpe","languageCode":"en"},
		{"baseUrl":"http://HOST/api/timedtext?v=x","languageCode":"en","kind":"asr"}
	]}},"note":"brace } in \"string\" {"}`
	srv := newTranscriptServer(t, player)

	c := NewTranscriptClient(TranscriptConfig{WatchBase: srv.URL, Retry: fastRetry})
	segs, err := c.Transcript(context.Background(), "v1aaaaaaaaa")
	require.NoError(t, err)
	require.Len(t, segs, 3)

	assert.Equal(t, "hello there", segs[0].Text)
	assert.Equal(t, 0.5, segs[0].StartSeconds)
	assert.Equal(t, "a cat sat & purred", segs[1].Text)
	assert.Equal(t, 2.0, segs[1].StartSeconds)
	assert.Equal(t, 3.0, segs[1].DurationSeconds)
	assert.Equal(t, "music", segs[2].Text)
}

func TestTranscript_NoCaptionsIsDisabled(t *testing.T) {
	srv := newTranscriptServer(t, `{"playabilityStatus":{"status":"OK"}}`)
	c := NewTranscriptClient(TranscriptConfig{WatchBase: srv.URL, Retry: fastRetry})

	_, err := c.Transcript(context.Background(), "v1aaaaaaaaa")
	assert.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestTranscript_EmptyTracksIsDisabled(t *testing.T) {
	srv := newTranscriptServer(t, `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[]}}}`)
	c := NewTranscriptClient(TranscriptConfig{WatchBase: srv.URL, Retry: fastRetry})

	_, err := c.Transcript(context.Background(), "v1aaaaaaaaa")
	assert.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestTranscript_MissingMarkerIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>consent wall</html>")
	}))
	defer srv.Close()
	c := NewTranscriptClient(TranscriptConfig{WatchBase: srv.URL, Retry: fastRetry})

	_, err := c.Transcript(context.Background(), "v1aaaaaaaaa")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, errors.Is(err, ErrTranscriptsDisabled))
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "a", LanguageCode: "de"},
		{BaseURL: "b", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "c", LanguageCode: "en"},
	}
	tr, ok := pickBestTrack(tracks, []string{"en"})
	require.True(t, ok)
	assert.Equal(t, "c", tr.BaseURL, "manual track wins over asr")

	tr, ok = pickBestTrack(tracks[:2], []string{"fr"})
	require.True(t, ok)
	assert.Equal(t, "b", tr.BaseURL, "any English track when preferred language absent")

	_, ok = pickBestTrack([]captionTrack{{BaseURL: "x&exp=xpe"}}, []string{"en"})
	assert.False(t, ok)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1};rest`, `{"a":1}`},
		{`{"a":"}\"{"};x`, `{"a":"}\"{"}`},
		{`{"a":"x\\"};y`, `{"a":"x\\"}`},
		{`{"a":{"b":2}}}`, `{"a":{"b":2}}`},
		{`no`, ``},
		{`{"open":`, ``},
	}
	for _, tt := range tests {
		if got := string(extractJSON([]byte(tt.in))); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeExec struct {
	calls  atomic.Int32
	args   []string
	result media.RunResult
	write  bool
}

func (f *fakeExec) Run(ctx context.Context, outPath, name string, args ...string) media.RunResult {
	f.calls.Add(1)
	f.args = args
	if f.write {
		os.WriteFile(filepath.Join(filepath.Dir(outPath), "source.mp4"), []byte("video"), 0644)
	}
	return f.result
}

func (f *fakeExec) Output(ctx context.Context, name string, args ...string) ([]byte, media.RunResult) {
	return nil, f.result
}

func TestDownloader_Fetch(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeExec{write: true}
	d := NewDownloader(fe, "", nil)

	path, err := d.Fetch(context.Background(), "v1aaaaaaaaa", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "source.mp4"), path)

	joined := strings.Join(fe.args, " ")
	assert.Contains(t, joined, "--no-playlist")
	assert.Contains(t, joined, "/watch?v=v1aaaaaaaaa")
}

func TestDownloader_RejectsBadID(t *testing.T) {
	fe := &fakeExec{}
	d := NewDownloader(fe, "", nil)

	_, err := d.Fetch(context.Background(), "--exec=rm", t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidVideoID)
	assert.Equal(t, int32(0), fe.calls.Load())
}

func TestDownloader_ToolFailure(t *testing.T) {
	fe := &fakeExec{result: media.RunResult{ExitCode: 1, StderrTail: "ERROR: Video unavailable"}}
	d := NewDownloader(fe, "", nil)

	_, err := d.Fetch(context.Background(), "v1aaaaaaaaa", t.TempDir())
	var te *media.ToolError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "Video unavailable")
}

func TestDownloader_NoOutput(t *testing.T) {
	d := NewDownloader(&fakeExec{}, "", nil)
	_, err := d.Fetch(context.Background(), "v1aaaaaaaaa", t.TempDir())
	assert.Error(t, err)
}

func TestRetryHTTP_AdmissionGatesRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	admitted := 0
	ctx := WithAdmission(context.Background(), func() bool {
		admitted++
		return admitted < 2
	})
	c := NewSearchClient(SearchConfig{BaseURL: srv.URL, APIKey: "KEY", Retry: fastRetry})
	_, err := c.Search(ctx, "a cat sat", 5)

	require.ErrorIs(t, err, ErrAttemptDenied)
	assert.Equal(t, int32(2), hits.Load(), "first attempt plus one admitted retry")
	assert.Equal(t, 2, admitted)
}
