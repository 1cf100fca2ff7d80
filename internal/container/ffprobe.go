package container

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

// FFprobeProber runs the ffprobe binary.
type FFprobeProber struct {
	binary string
}

// NewFFprobeProber creates a prober running binary, "ffprobe" when empty.
func NewFFprobeProber(binary string) *FFprobeProber {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobeProber{binary: binary}
}

// Available reports whether the ffprobe binary can be found.
func (p *FFprobeProber) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// Probe extracts duration, tags and chapters using ffprobe.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_chapters",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseFFprobeOutput(output)
}

func parseFFprobeOutput(output []byte) (*ProbeResult, error) {
	var data ffprobeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ProbeResult{
		DurationMs: secondsToMs(data.Format.Duration),
	}

	// Tag keys are upper case for Vorbis comments and lower case elsewhere.
	tags := make(map[string]string, len(data.Format.Tags))
	for k, v := range data.Format.Tags {
		tags[strings.ToLower(k)] = v
	}
	res.Title = tags["title"]
	res.Album = tags["album"]
	res.Artist = tags["artist"]
	if res.Artist == "" {
		res.Artist = tags["album_artist"]
	}

	for i, ch := range data.Chapters {
		name := ""
		for k, v := range ch.Tags {
			if strings.EqualFold(k, "title") {
				name = v
				break
			}
		}
		if name == "" {
			name = fmt.Sprintf("Chapter %d", i+1)
		}
		res.Chapters = append(res.Chapters, domain.ChapterMark{
			StartMs: secondsToMs(ch.StartTime),
			Name:    name,
		})
	}
	return res, nil
}

// secondsToMs converts ffprobe's decimal seconds, returning 0 when unparsable.
func secondsToMs(s string) uint64 {
	if s == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return uint64(secs * 1000)
}

// ffprobeOutput represents ffprobe JSON output.
type ffprobeOutput struct {
	Format   ffprobeFormat    `json:"format"`
	Chapters []ffprobeChapter `json:"chapters"`
}

type ffprobeFormat struct {
	Tags       map[string]string `json:"tags"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
}

type ffprobeChapter struct {
	Tags      map[string]string `json:"tags"`
	StartTime string            `json:"start_time"`
	ID        int64             `json:"id"`
}
