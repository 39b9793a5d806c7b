package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Image is a single-frame source: one item, then end of sequence.
type Image struct {
	id   string
	path string
}

func NewImage(id, path string) *Image {
	return &Image{id: id, path: path}
}

func (s *Image) ID() string { return s.id }
func (s *Image) Kind() Kind { return KindImage }

func (s *Image) Run(ctx context.Context, out chan<- domain.Frame) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.ErrSourceUnavailable.WithError(fmt.Errorf("read image %s: %w", s.path, err))
	}

	frame := domain.Frame{
		SourceID:  s.id,
		Timestamp: time.Now().UTC(),
		Sequence:  0,
		Image:     data,
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- frame:
		return nil
	}
}
