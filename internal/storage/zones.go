package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genbot/internal/domain"
)

// Zone names under a user's root. Files only ever move between zones; no
// operation in this package permanently deletes a file.
const (
	zoneRecent   = "last_uploads"
	zoneArchival = "used"
	zoneResults  = "results"
	zoneSets     = "sets"
)

// ZoneStore places user-supplied and generated images across lifecycle
// zones on the local filesystem. Layout: {base}/{userID}/{zone}/{filename},
// with freshly uploaded files landing in the user root (the incoming zone).
type ZoneStore struct {
	basePath    string
	maxFileSize int64
	logger      zerolog.Logger
}

// NewZoneStore initializes a store rooted at basePath.
func NewZoneStore(basePath string, maxFileSize int64, logger zerolog.Logger) (*ZoneStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ZoneStore{basePath: basePath, maxFileSize: maxFileSize, logger: logger}, nil
}

// BasePath returns the configured root directory.
func (s *ZoneStore) BasePath() string {
	return s.basePath
}

// UserRoot returns (and creates) the incoming zone for the user.
func (s *ZoneStore) UserRoot(userID int64) (string, error) {
	dir := filepath.Join(s.basePath, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure user dir: %w", err)
	}
	return dir, nil
}

func (s *ZoneStore) zoneDir(userID int64, zone string) (string, error) {
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, zone)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure zone %s: %w", zone, err)
	}
	return dir, nil
}

// SetDir returns (and creates) the dedicated zone for a saved set.
func (s *ZoneStore) SetDir(userID, setID int64) (string, error) {
	return s.zoneDir(userID, filepath.Join(zoneSets, strconv.FormatInt(setID, 10)))
}

// SaveIncoming writes an uploaded photo into the user's incoming zone under
// a fresh unique name, preserving the original extension.
func (s *ZoneStore) SaveIncoming(userID int64, data []byte, originalName string) (string, error) {
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		return "", fmt.Errorf("storage: file exceeds %d bytes", s.maxFileSize)
	}
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".jpg"
	}
	path := filepath.Join(root, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write incoming file: %w", err)
	}
	return path, nil
}

// AdoptIntoRecent moves files into the recent zone. A file already located
// there is left in place. A name collision first relocates the existing
// recent file to archival, then completes the move. Vanished files are
// skipped with a warning.
func (s *ZoneStore) AdoptIntoRecent(userID int64, paths []string) ([]string, error) {
	recentDir, err := s.zoneDir(userID, zoneRecent)
	if err != nil {
		return nil, err
	}
	var adopted []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn().Str("path", path).Msg("storage: file vanished before adopt, skipped")
			continue
		}
		if filepath.Dir(path) == recentDir {
			adopted = append(adopted, path)
			continue
		}
		dest := filepath.Join(recentDir, filepath.Base(path))
		if _, err := os.Stat(dest); err == nil {
			if _, err := s.Archive(userID, []string{dest}); err != nil {
				s.logger.Error().Err(err).Str("path", dest).Msg("storage: failed to displace recent file")
				continue
			}
		}
		if err := os.Rename(path, dest); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("storage: adopt into recent failed")
			continue
		}
		adopted = append(adopted, dest)
	}
	return adopted, nil
}

// Archive moves files to the archival zone. A name collision appends a
// timestamp suffix so nothing is silently overwritten; vanished files are
// skipped with a warning, never an error.
func (s *ZoneStore) Archive(userID int64, paths []string) ([]string, error) {
	usedDir, err := s.zoneDir(userID, zoneArchival)
	if err != nil {
		return nil, err
	}
	var archived []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			s.logger.Warn().Str("path", path).Err(domain.ErrFileMissing).Msg("storage: skip archive of missing file")
			continue
		}
		dest := filepath.Join(usedDir, filepath.Base(path))
		if _, err := os.Stat(dest); err == nil {
			dest = filepath.Join(usedDir, timestampedName(filepath.Base(path)))
		}
		if err := os.Rename(path, dest); err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("storage: archive failed")
			continue
		}
		archived = append(archived, dest)
	}
	return archived, nil
}

// AdoptIntoSet moves a file into the set's dedicated zone. Idempotent when
// the file already lives there; collisions are suffixed like Archive.
func (s *ZoneStore) AdoptIntoSet(userID, setID int64, path string) (string, error) {
	setDir, err := s.SetDir(userID, setID)
	if err != nil {
		return "", err
	}
	if filepath.Dir(path) == setDir {
		return path, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("storage: %w: %s", domain.ErrFileMissing, path)
	}
	dest := filepath.Join(setDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(setDir, timestampedName(filepath.Base(path)))
	}
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("storage: adopt into set: %w", err)
	}
	return dest, nil
}

// PersistGenerated writes generated image bytes into the results zone under
// a fresh unique name. For PNG payloads the prompt and route are embedded as
// tEXt metadata; embedding failure degrades to a plain write.
func (s *ZoneStore) PersistGenerated(userID int64, data []byte, prompt string, route domain.Route) (string, error) {
	resultsDir, err := s.zoneDir(userID, zoneResults)
	if err != nil {
		return "", err
	}
	name := uuid.NewString() + ".png"
	path := filepath.Join(resultsDir, name)

	if tagged, err := embedPNGText(data, map[string]string{
		"prompt": prompt,
		"route":  string(route),
	}); err == nil {
		data = tagged
	} else {
		s.logger.Warn().Err(err).Msg("storage: metadata embedding failed, writing plain image")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write generated image: %w", err)
	}
	return path, nil
}

// ListRecent returns the recent-zone files ordered by modification time
// ascending, approximating original upload order.
func (s *ZoneStore) ListRecent(userID int64) ([]string, error) {
	recentDir, err := s.zoneDir(userID, zoneRecent)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(recentDir)
	if err != nil {
		return nil, fmt.Errorf("storage: read recent zone: %w", err)
	}
	type fileAge struct {
		path string
		mod  time.Time
	}
	var files []fileAge
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{path: filepath.Join(recentDir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path < files[j].path
		}
		return files[i].mod.Before(files[j].mod)
	})
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.path)
	}
	return paths, nil
}

// ClearTemp archives everything in the incoming and recent zones, returning
// the number of files moved. Used for zone hygiene before adopting a saved
// set.
func (s *ZoneStore) ClearTemp(userID int64) (int, error) {
	root, err := s.UserRoot(userID)
	if err != nil {
		return 0, err
	}
	var temp []string
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("storage: read user root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			temp = append(temp, filepath.Join(root, e.Name()))
		}
	}
	recent, err := s.ListRecent(userID)
	if err != nil {
		return 0, err
	}
	temp = append(temp, recent...)
	moved, err := s.Archive(userID, temp)
	if err != nil {
		return 0, err
	}
	return len(moved), nil
}

// FindByName searches the user's zones for a file with the given base name.
// Tolerates historical path-layout changes when repairing saved-set entries.
func (s *ZoneStore) FindByName(userID int64, name string) (string, bool) {
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", false
	}
	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// ResolveServed maps a URL-style relative path onto the user's root,
// rejecting anything that escapes it.
func (s *ZoneStore) ResolveServed(userID int64, rel string) (string, error) {
	root, err := s.UserRoot(userID)
	if err != nil {
		return "", err
	}
	rel = strings.TrimLeft(strings.ReplaceAll(rel, "\\", "/"), "/")
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: invalid file path %q", rel)
	}
	return filepath.Join(root, cleaned), nil
}

// HashFile returns the hex sha256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("storage: open for hashing: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("storage: hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func timestampedName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, time.Now().Unix(), ext)
}
