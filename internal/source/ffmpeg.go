package source

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ffmpegConn decodes a stream or file through an ffmpeg subprocess emitting
// MJPEG on stdout.
type ffmpegConn struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	scanner *mjpegScanner
	timeout time.Duration
	cancel  context.CancelFunc
}

// readResult carries one frame or error out of the blocking read goroutine.
type readResult struct {
	frame []byte
	err   error
}

func startFFmpeg(ctx context.Context, args []string, readTimeout time.Duration) (*ffmpegConn, error) {
	cmdCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(cmdCtx, "ffmpeg", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegConn{
		cmd:     cmd,
		stdout:  stdout,
		scanner: newMJPEGScanner(stdout),
		timeout: readTimeout,
		cancel:  cancel,
	}, nil
}

// ReadFrame blocks for at most the configured timeout; a stalled stream is a
// read failure, never a silent freeze.
func (c *ffmpegConn) ReadFrame(ctx context.Context) ([]byte, error) {
	resultCh := make(chan readResult, 1)
	go func() {
		frame, err := c.scanner.Next()
		resultCh <- readResult{frame: frame, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("frame read timed out after %s", c.timeout)
	case res := <-resultCh:
		return res.frame, res.err
	}
}

func (c *ffmpegConn) Close() error {
	c.cancel()
	_ = c.stdout.Close()
	// Wait reaps the process; the error is expected after a kill.
	_ = c.cmd.Wait()
	return nil
}

// rtspArgs builds the ffmpeg invocation for a live RTSP feed sampled at the
// given rate.
func rtspArgs(url string, sampleFPS int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", url,
		"-vf", fmt.Sprintf("fps=%d", sampleFPS),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "4",
		"-",
	}
}

// videoArgs builds the ffmpeg invocation for an offline file, keeping every
// Nth frame.
func videoArgs(path string, sampleEvery int) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", path,
	}
	if sampleEvery > 1 {
		args = append(args,
			"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", sampleEvery),
			"-vsync", "vfr",
		)
	}
	return append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "4",
		"-",
	)
}

// FFmpegDialer is the production Dialer: one ffmpeg process per connection.
type FFmpegDialer struct {
	SampleFPS   int
	ReadTimeout time.Duration
}

func (d *FFmpegDialer) Dial(ctx context.Context, url string) (FrameConn, error) {
	fps := d.SampleFPS
	if fps < 1 {
		fps = 1
	}
	timeout := d.ReadTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	if !strings.HasPrefix(url, "rtsp://") && !strings.HasPrefix(url, "rtsps://") {
		return nil, fmt.Errorf("unsupported stream url %q", url)
	}
	return startFFmpeg(ctx, rtspArgs(url, fps), timeout)
}
