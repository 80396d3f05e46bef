package discord

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/dtune/internal/domain"
)

// ffmpegWaitDelay bounds how long a killed ffmpeg may hold its pipes.
const ffmpegWaitDelay = 2 * time.Second

// pipeline turns one resource into Opus packets.
// Ogg Opus streams are read directly; everything else goes through ffmpeg.
type pipeline struct {
	logger  *slog.Logger
	res     *domain.Resource
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	packets *oggReader
	once    sync.Once
}

func startPipeline(logger *slog.Logger, ffmpegPath string, res *domain.Resource) (*pipeline, error) {
	if res.Stream != nil && res.InputType == domain.InputOggOpus {
		return &pipeline{
			logger:  logger,
			res:     res,
			cancel:  func() {},
			packets: newOggReader(res.Stream),
		}, nil
	}
	if res.Stream == nil && res.SourceURL == "" {
		return nil, fmt.Errorf("resource has neither a stream nor a source url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(res)...)
	cmd.WaitDelay = ffmpegWaitDelay
	if res.Stream != nil {
		cmd.Stdin = res.Stream
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go logStderr(logger, stderr)

	logger.Debug("ffmpeg started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("input_type", string(res.InputType)))

	return &pipeline{
		logger:  logger,
		res:     res,
		cmd:     cmd,
		cancel:  cancel,
		packets: newOggReader(stdout),
	}, nil
}

// ffmpegArgs builds the transcode to 48kHz stereo Ogg Opus on stdout.
// Webm Opus input is remuxed without re-encoding.
func ffmpegArgs(res *domain.Resource) []string {
	input := "pipe:0"
	if res.Stream == nil {
		input = res.SourceURL
	}

	var args []string
	if res.Stream == nil && (strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")) {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	args = append(args,
		"-hide_banner",
		"-loglevel", "warning",
		"-analyzeduration", "0",
		"-i", input,
		"-map", "0:a",
	)

	if res.InputType == domain.InputWebmOpus {
		args = append(args, "-acodec", "copy")
	} else {
		args = append(args,
			"-acodec", "libopus",
			"-ar", "48000",
			"-ac", "2",
			"-b:a", "128k",
			"-vbr", "on",
			"-compression_level", "10",
			"-frame_duration", "20",
		)
	}

	return append(args, "-f", "opus", "pipe:1")
}

func logStderr(logger *slog.Logger, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Debug("ffmpeg", slog.String("line", line))
		}
	}
}

// close stops ffmpeg and releases the resource. Safe to call more than once.
func (p *pipeline) close() {
	p.once.Do(func() {
		p.cancel()
		if err := p.res.Close(); err != nil {
			p.logger.Debug("failed to close resource", slog.String("error", err.Error()))
		}
		if p.cmd != nil {
			// Killed on purpose, so the exit status carries no information
			_ = p.cmd.Wait()
		}
	})
}
