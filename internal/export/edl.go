package export

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/montage"
)

// EDLExtension is appended to the montage path to name its sidecar.
const EDLExtension = ".edl"

// EDLPath returns the sidecar path for a montage file.
func EDLPath(outputPath string) string {
	return outputPath + EDLExtension
}

// GenerateEDL renders the montage timeline as a CMX3600 edit decision list.
// Clip events reference their clip file; fallbacks and padding use the
// black (BL) source.
func GenerateEDL(events []montage.Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, ev := range events {
		durationMs := secondsToMs(ev.Seconds)
		reel := "BL"
		srcStartMs := 0
		if ev.Kind == montage.EventClip {
			reel = "AX"
			srcStartMs = secondsToMs(ev.SourceIn)
		}

		srcIn := msToTimecode(srcStartMs, fps)
		srcOut := msToTimecode(srcStartMs+durationMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines, fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, reel, "AA/V", srcIn, srcOut, recIn, recOut))
		switch ev.Kind {
		case montage.EventClip:
			lines = append(lines,
				fmt.Sprintf("* FROM CLIP NAME:  %s", ev.VideoID),
				fmt.Sprintf("* MEDIA PATH:  %s", ev.ClipPath),
			)
		case montage.EventFallback:
			lines = append(lines, fmt.Sprintf("* FALLBACK:  %s", SanitizeName(ev.Text, 120)))
		case montage.EventPadding:
			lines = append(lines, "* PADDING")
		}

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes the sidecar for a compiled montage and returns its path.
func WriteEDL(res *montage.Result, title string) (string, error) {
	path := EDLPath(res.OutputPath)
	edl := GenerateEDL(res.Events, title, media.OutputFrameRate)
	if err := os.WriteFile(path, []byte(edl), 0644); err != nil {
		return "", fmt.Errorf("write edl: %w", err)
	}
	return path, nil
}

func secondsToMs(s float64) int {
	return int(math.Round(s * 1000))
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
