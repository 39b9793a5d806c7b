package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/detect"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/store"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Enrollment walks a photos directory and adds one embedding per image.
// Photos grouped in a subdirectory enroll as one identity with multiple
// embeddings; top-level files enroll as one identity each, named after the
// file.
func run() error {
	photosDir := flag.String("photos-dir", "", "directory containing enrollment photos")
	flag.Parse()

	if *photosDir == "" {
		return fmt.Errorf("-photos-dir is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()

	watchlist, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open watchlist store: %w", err)
	}
	defer func() { _ = watchlist.Close() }()

	detector := detect.NewClient(detect.Config{
		BaseURL: cfg.DetectorURL,
		Timeout: cfg.DetectorTimeout,
	})

	identityByName := make(map[string]string)
	added := 0

	err = filepath.WalkDir(*photosDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		name := displayName(*photosDir, path)
		if err := enroll(ctx, cfg, watchlist, detector, identityByName, name, path); err != nil {
			logger.Warn("skipping photo", "path", path, "error", err)
			return nil
		}

		logger.Info("enrolled", "name", name, "path", path)
		added++
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", *photosDir, err)
	}

	fmt.Printf("added %d embeddings across %d identities\n", added, len(identityByName))
	return nil
}

// displayName derives the identity name: the subdirectory name when a photo
// is nested, the file basename otherwise.
func displayName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	dir := filepath.Dir(rel)
	if dir != "." {
		return filepath.Base(dir)
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func enroll(ctx context.Context, cfg *config.Config, watchlist store.WatchlistStore, detector detect.Detector, identityByName map[string]string, name, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	faces, err := detector.DetectAndEmbed(ctx, image)
	if err != nil {
		return err
	}
	if len(faces) == 0 {
		return domain.ErrNoFaceDetected
	}

	embedding, err := domain.NewEmbedding(faces[0].Embedding, cfg.EmbeddingSize)
	if err != nil {
		return err
	}

	identityID, ok := identityByName[name]
	if !ok {
		identityID, err = watchlist.AddIdentity(ctx, name)
		if err != nil {
			return err
		}
		identityByName[name] = identityID
	}

	return watchlist.AddEmbedding(ctx, identityID, embedding)
}
