package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Video decodes a file sequentially, sampling every Nth frame. The sequence
// is finite and the caller is blocked on delivery: offline batch jobs drop
// nothing.
type Video struct {
	id          string
	path        string
	sampleEvery int
	readTimeout time.Duration
}

func NewVideo(id, path string, sampleEvery int) *Video {
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Video{
		id:          id,
		path:        path,
		sampleEvery: sampleEvery,
		readTimeout: 30 * time.Second,
	}
}

func (s *Video) ID() string { return s.id }
func (s *Video) Kind() Kind { return KindVideo }

func (s *Video) Run(ctx context.Context, out chan<- domain.Frame) error {
	if _, err := os.Stat(s.path); err != nil {
		return domain.ErrSourceUnavailable.WithError(fmt.Errorf("video %s: %w", s.path, err))
	}

	conn, err := startFFmpeg(ctx, videoArgs(s.path, s.sampleEvery), s.readTimeout)
	if err != nil {
		return domain.ErrSourceUnavailable.WithError(err)
	}
	defer func() { _ = conn.Close() }()

	var seq uint64
	for {
		image, err := conn.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.ErrSourceUnavailable.WithError(fmt.Errorf("decode %s: %w", s.path, err))
		}

		frame := domain.Frame{
			SourceID:  s.id,
			Timestamp: time.Now().UTC(),
			Sequence:  seq,
			Image:     image,
		}
		seq++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- frame:
		}
	}
}
