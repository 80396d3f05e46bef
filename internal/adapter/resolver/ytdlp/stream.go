package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// processStream is the stdout of a running yt-dlp process.
// Closing it kills the process and reaps it.
type processStream struct {
	logger *slog.Logger
	cmd    *exec.Cmd
	out    *bufio.Reader
	cancel context.CancelFunc
	stderr *bytes.Buffer

	once    sync.Once
	waitErr error
}

func newProcessStream(logger *slog.Logger, cmd *exec.Cmd, stdout io.Reader, cancel context.CancelFunc, stderr *bytes.Buffer) *processStream {
	return &processStream{
		logger: logger,
		cmd:    cmd,
		out:    bufio.NewReaderSize(stdout, 64*1024),
		cancel: cancel,
		stderr: stderr,
	}
}

// waitFirstByte blocks until yt-dlp produces output, exits, or ctx is done.
// An early exit is reported with the last line yt-dlp wrote to stderr.
func (p *processStream) waitFirstByte(ctx context.Context) error {
	peeked := make(chan error, 1)
	go func() {
		_, err := p.out.Peek(1)
		peeked <- err
	}()

	select {
	case err := <-peeked:
		if err == nil {
			return nil
		}
		_ = p.wait()
		if msg := strings.TrimSpace(p.stderr.String()); msg != "" {
			return fmt.Errorf("yt-dlp produced no audio: %s", lastLine(msg))
		}
		return fmt.Errorf("yt-dlp produced no audio: %w", err)
	case <-ctx.Done():
		// Close kills the process, which unblocks the pending Peek
		return ctx.Err()
	}
}

func (p *processStream) Read(b []byte) (int, error) {
	return p.out.Read(b)
}

// Close kills yt-dlp if it is still running and waits for it to exit.
func (p *processStream) Close() error {
	err := p.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) || errors.Is(err, exec.ErrWaitDelay) {
		// Killed on purpose or exited after the reader went away
		return nil
	}
	return err
}

func (p *processStream) wait() error {
	p.once.Do(func() {
		p.cancel()
		p.waitErr = p.cmd.Wait()
		p.logger.Debug("yt-dlp exited", slog.Any("error", p.waitErr))
	})
	return p.waitErr
}
