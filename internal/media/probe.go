package media

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbe reads ffprobe -of json output. Stream duration wins over format duration.
func parseProbe(data []byte) (*ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("no streams found")
	}

	var res ProbeResult
	sawVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if sawVideo {
				continue
			}
			sawVideo = true
			res.Codec = s.CodecName
			res.Width = s.Width
			res.Height = s.Height
			res.FrameRate = parseRate(s.AvgFrameRate)
			if res.FrameRate == 0 {
				res.FrameRate = parseRate(s.RFrameRate)
			}
			res.Duration = parseFloat(s.Duration)
		case "audio":
			if !res.HasAudio {
				res.HasAudio = true
				res.AudioCodec = s.CodecName
			}
		}
	}

	if res.Duration == 0 {
		res.Duration = parseFloat(out.Format.Duration)
	}
	if res.Duration == 0 && !sawVideo && res.HasAudio {
		for _, s := range out.Streams {
			if d := parseFloat(s.Duration); d > 0 {
				res.Duration = d
				break
			}
		}
	}
	return &res, nil
}

// parseRate parses "30000/1001" or "30".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
