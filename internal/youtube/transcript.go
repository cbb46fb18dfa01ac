package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/clip"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
)

// WatchBase is the site root the watch page is scraped from.
const WatchBase = "https://www.youtube.com"

// playerResponseMarker marks the start of the player response JSON in watch page HTML.
const playerResponseMarker = "ytInitialPlayerResponse = "

type playerResponse struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// TranscriptConfig configures a TranscriptClient.
type TranscriptConfig struct {
	WatchBase  string   // default WatchBase
	Languages  []string // preferred caption languages, most preferred first
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Retry      *RetryConfig
	Logger     *slog.Logger
}

// TranscriptClient fetches timed captions for a video.
type TranscriptClient struct {
	watchBase string
	langs     []string
	http      *http.Client
	limiter   *rate.Limiter
	retry     RetryConfig
	logger    *slog.Logger
}

// NewTranscriptClient creates a transcript client.
func NewTranscriptClient(cfg TranscriptConfig) *TranscriptClient {
	c := &TranscriptClient{
		watchBase: strings.TrimRight(cfg.WatchBase, "/"),
		langs:     cfg.Languages,
		http:      cfg.HTTPClient,
		limiter:   cfg.Limiter,
		retry:     DefaultRetryConfig,
		logger:    cfg.Logger,
	}
	if c.watchBase == "" {
		c.watchBase = WatchBase
	}
	if len(c.langs) == 0 {
		c.langs = []string{"en"}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry != nil {
		c.retry = *cfg.Retry
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Transcript returns the time-ordered caption segments of a video.
// A video without usable captions yields an error wrapping ErrTranscriptsDisabled.
func (c *TranscriptClient) Transcript(ctx context.Context, videoID string) ([]clip.TranscriptSegment, error) {
	body, err := c.get(ctx, "watch", c.watchBase+"/watch?v="+videoID, 6*1024*1024, map[string]string{
		"Accept-Language": "en-US,en;q=0.9",
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	})
	if err != nil {
		return nil, err
	}

	idx := strings.Index(string(body), playerResponseMarker)
	if idx < 0 {
		return nil, &ProviderError{Op: "watch", Err: fmt.Errorf("ytInitialPlayerResponse not found")}
	}
	raw := extractJSON(body[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, &ProviderError{Op: "watch", Err: fmt.Errorf("unterminated ytInitialPlayerResponse")}
	}

	var player playerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	if player.Captions == nil {
		reason := ""
		if player.PlayabilityStatus != nil {
			reason = player.PlayabilityStatus.Reason
		}
		return nil, fmt.Errorf("%s: %w %s", videoID, ErrTranscriptsDisabled, reason)
	}
	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%s: %w: no caption tracks", videoID, ErrTranscriptsDisabled)
	}
	track, ok := pickBestTrack(tracks, c.langs)
	if !ok {
		return nil, fmt.Errorf("%s: %w: all tracks need a browser token", videoID, ErrTranscriptsDisabled)
	}

	xmlBody, err := c.get(ctx, "timedtext", track.BaseURL, 1024*1024, nil)
	if err != nil {
		return nil, err
	}
	segs, err := parseTimedText(xmlBody)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("transcript fetched", "video_id", videoID, "lang", track.LanguageCode, "segments", len(segs))
	return segs, nil
}

func (c *TranscriptClient) get(ctx context.Context, op, target string, limit int64, headers map[string]string) ([]byte, error) {
	resp, err := RetryHTTP(ctx, c.retry, c.limiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return c.http.Do(req)
	})
	if err != nil {
		return nil, asProviderError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", op, err)
	}
	return body, nil
}

// needsPoToken reports whether a caption track URL requires a browser-only token.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

var tagRE = regexp.MustCompile(`<[^>]*>`)

// parseTimedText turns timedtext XML into segments. Caption text arrives
// entity-encoded a second time inside the XML, so it is unescaped again.
func parseTimedText(body []byte) ([]clip.TranscriptSegment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segs := make([]clip.TranscriptSegment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := html.UnescapeString(line.Text)
		text = tagRE.ReplaceAllString(text, "")
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		start, err := strconv.ParseFloat(line.Start, 64)
		if err != nil {
			continue
		}
		dur, _ := strconv.ParseFloat(line.Dur, 64)
		segs = append(segs, clip.TranscriptSegment{Text: text, StartSeconds: start, DurationSeconds: dur})
	}
	return segs, nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
