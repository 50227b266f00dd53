package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/storage"
)

// Resolver produces the active reference-image set for a generation from
// the session's chosen photo source. Resolution never mutates image files;
// for saved sets it may repair a dangling stored path.
type Resolver struct {
	store  *storage.ZoneStore
	sets   domain.ImageSetRepository
	logger *infra.Logger
}

// NewResolver constructs a resolver over the zone store and set repository.
func NewResolver(store *storage.ZoneStore, sets domain.ImageSetRepository, logger *infra.Logger) *Resolver {
	return &Resolver{store: store, sets: sets, logger: logger}
}

// Resolve returns the image paths to feed the generation client.
func (r *Resolver) Resolve(ctx context.Context, session *domain.Session) ([]string, error) {
	switch session.PhotoSource {
	case domain.PhotoSourceFresh:
		session.FlattenBatches()
		return session.SelectedImages, nil
	case domain.PhotoSourceLastUsed:
		paths, err := r.store.ListRecent(session.UserID)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: list recent photos: %w", err)
		}
		return paths, nil
	case domain.PhotoSourceSavedSet:
		return r.resolveSet(ctx, session.UserID, session.PendingSetID)
	default:
		return nil, nil
	}
}

// AdoptSet evicts stale temporary files and resolves the set's images. Used
// when the user picks a saved set as the photo source.
func (r *Resolver) AdoptSet(ctx context.Context, userID, setID int64) ([]string, error) {
	if moved, err := r.store.ClearTemp(userID); err != nil {
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("resolver: temp cleanup failed")
	} else if moved > 0 {
		r.logger.Debug().Int64("user_id", userID).Int("moved", moved).Msg("resolver: archived stale temp files")
	}
	return r.resolveSet(ctx, userID, setID)
}

// resolveSet lists the set's images in creation order, repairing entries
// whose recorded path no longer exists by searching the user's zones for a
// same-named file. Irreparable images are dropped with a warning.
func (r *Resolver) resolveSet(ctx context.Context, userID, setID int64) ([]string, error) {
	images, err := r.sets.ListImages(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list set images: %w", err)
	}
	var paths []string
	for _, img := range images {
		path := img.FilePath
		if _, err := os.Stat(path); err != nil {
			repaired, ok := r.store.FindByName(userID, filepath.Base(path))
			if !ok {
				r.logger.Warn().Int64("set_id", setID).Str("path", path).Msg("resolver: set image lost, dropped")
				continue
			}
			if err := r.sets.UpdateImagePath(ctx, img.ID, repaired); err != nil {
				r.logger.Warn().Err(err).Int64("image_id", img.ID).Msg("resolver: path repair not persisted")
			}
			r.logger.Info().Str("old", path).Str("new", repaired).Msg("resolver: repaired set image path")
			path = repaired
		}
		paths = append(paths, path)
	}
	return paths, nil
}
