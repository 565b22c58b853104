package detector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/entity"
	"github.com/AnthonyPark465/flight-analysis-refined/internal/domain/port"
	"go.uber.org/zap"
)

const (
	annotatedFileName = "annotated.mp4"
	stderrTail        = 4096
	maxLineBytes      = 16 << 20
)

var errConsumed = errors.New("detection stream already consumed")

type Config struct {
	// Command is the detector executable. It is run as
	//   <Command> <Args...> --weights <ModelPath> --source <video> [--annotated-out <path>]
	// and must print one JSON line per decoded frame on stdout.
	Command   string
	Args      []string
	ModelPath string
	Annotate  bool
	// Prober is optional; when set the video is probed before inference.
	Prober *Prober
}

// Detector runs an external object detector as a subprocess.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, logger: logger}
}

var _ port.FrameDetector = (*Detector)(nil)

func (d *Detector) Detect(ctx context.Context, videoPath string, workDir string) (port.DetectionStream, error) {
	if _, err := os.Stat(d.cfg.ModelPath); err != nil {
		return nil, &entity.DetectionError{Err: fmt.Errorf("model weights unavailable: %w", err)}
	}
	bin, err := exec.LookPath(d.cfg.Command)
	if err != nil {
		return nil, &entity.DetectionError{Err: fmt.Errorf("detector command unavailable: %w", err)}
	}

	if d.cfg.Prober != nil {
		info, err := d.cfg.Prober.Probe(ctx, videoPath)
		if err != nil {
			return nil, &entity.DetectionError{Err: fmt.Errorf("unreadable video: %w", err)}
		}
		d.logger.Info("video probed",
			zap.String("codec", info.Codec),
			zap.Float64("video_duration", info.Duration),
		)
	}

	args := append([]string{}, d.cfg.Args...)
	args = append(args, "--weights", d.cfg.ModelPath, "--source", videoPath)

	var annotatedPath string
	if d.cfg.Annotate {
		annotatedPath = filepath.Join(workDir, annotatedFileName)
		args = append(args, "--annotated-out", annotatedPath)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &entity.DetectionError{Err: fmt.Errorf("detector stdout: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		return nil, &entity.DetectionError{Err: fmt.Errorf("start detector: %w", err)}
	}

	d.logger.Debug("detector started",
		zap.String("command", bin),
		zap.Strings("args", args),
	)

	return &stream{
		cmd:           cmd,
		stdout:        stdout,
		stderr:        stderr,
		annotatedPath: annotatedPath,
		logger:        d.logger,
	}, nil
}

type stream struct {
	cmd           *exec.Cmd
	stdout        io.ReadCloser
	stderr        *tailBuffer
	annotatedPath string
	logger        *zap.Logger

	consumed bool
	finished bool
	waited   bool
	frames   int
}

func (s *stream) Frames() iter.Seq2[entity.FrameDetections, error] {
	return func(yield func(entity.FrameDetections, error) bool) {
		if s.consumed {
			yield(nil, errConsumed)
			return
		}
		s.consumed = true

		sc := bufio.NewScanner(s.stdout)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			frame, err := ParseFrameLine(line)
			if err != nil {
				s.kill()
				yield(nil, &entity.DetectionError{Err: fmt.Errorf("frame %d: %w", s.frames, err)})
				return
			}
			s.frames++
			if !yield(frame, nil) {
				s.kill()
				return
			}
		}
		if err := sc.Err(); err != nil {
			s.kill()
			yield(nil, &entity.DetectionError{Err: fmt.Errorf("read detector output: %w", err)})
			return
		}

		s.waited = true
		if err := s.cmd.Wait(); err != nil {
			yield(nil, &entity.DetectionError{Err: fmt.Errorf("detector exited: %w, stderr: %s", err, s.stderr.String())})
			return
		}
		s.finished = true
		s.logger.Info("detection finished", zap.Int("frames", s.frames))
	}
}

// AnnotatedVideo returns the boxed-frame copy of the video the detector was
// asked to write, once the detector has exited successfully and left a
// non-empty file at that path.
func (s *stream) AnnotatedVideo() (string, bool) {
	if !s.finished || s.annotatedPath == "" {
		return "", false
	}
	info, err := os.Stat(s.annotatedPath)
	if err != nil || info.Size() == 0 {
		s.logger.Warn("detector produced no annotated video", zap.String("path", s.annotatedPath))
		return "", false
	}
	return s.annotatedPath, true
}

func (s *stream) Close() error {
	if !s.waited {
		s.kill()
	}
	return nil
}

func (s *stream) kill() {
	if s.waited {
		return
	}
	s.waited = true
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
}
