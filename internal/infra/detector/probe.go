package detector

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type VideoInfo struct {
	Codec    string
	Duration float64
}

// Prober checks with ffprobe that a file is a decodable video container before
// inference is attempted.
type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

func (p *Prober) Probe(ctx context.Context, videoPath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return ParseProbeOutput(string(output))
}

// ParseProbeOutput reads ffprobe key=value output. A container without a video
// stream is an error; a missing or non-numeric duration is not.
func ParseProbeOutput(output string) (*VideoInfo, error) {
	info := &VideoInfo{}
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "codec_name":
			info.Codec = value
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = d
			}
		}
	}
	if info.Codec == "" {
		return nil, fmt.Errorf("no video stream found")
	}
	return info, nil
}
