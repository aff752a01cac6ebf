package media

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// PauseMarker is stripped from voiceover scripts before captioning.
const PauseMarker = "[Pause]"

// BuildSRT splits script into cues of wordsPerCue words spread evenly over
// total. It returns "" when the script has no words.
func BuildSRT(script string, total time.Duration, wordsPerCue int) string {
	if wordsPerCue <= 0 {
		wordsPerCue = 8
	}
	words := strings.Fields(strings.ReplaceAll(script, PauseMarker, " "))
	if len(words) == 0 || total <= 0 {
		return ""
	}

	var cues []string
	for i := 0; i < len(words); i += wordsPerCue {
		end := min(i+wordsPerCue, len(words))
		cues = append(cues, strings.Join(words[i:end], " "))
	}

	per := total / time.Duration(len(cues))
	var b strings.Builder
	for i, cue := range cues {
		start := per * time.Duration(i)
		stop := per * time.Duration(i+1)
		if i == len(cues)-1 {
			stop = total
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(start), srtTimestamp(stop), cue)
	}
	return b.String()
}

// WriteSRT builds captions and writes them to path. It reports false when the
// script produced no cues and nothing was written.
func WriteSRT(path, script string, total time.Duration, wordsPerCue int) (bool, error) {
	content := BuildSRT(script, total, wordsPerCue)
	if content == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write srt: %w", err)
	}
	return true, nil
}

// srtTimestamp formats d as HH:MM:SS,mmm.
func srtTimestamp(d time.Duration) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
