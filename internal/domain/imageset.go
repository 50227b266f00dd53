package domain

import "time"

// ImageSet is a user-named, persistent, reusable collection of reference
// images. Names are capped at 255 characters and need not be unique per
// owner. Deleting a set cascades to its images; their files move to the
// archival zone.
type ImageSet struct {
	ID        int64
	OwnerID   int64
	Name      string
	CreatedAt time.Time
}

// SetImage is one reference image belonging to a set. FilePath points into
// the set's dedicated storage zone; ContentHash identifies the bytes across
// path-layout changes.
type SetImage struct {
	ID          int64
	SetID       int64
	FilePath    string
	ContentHash string
	CreatedAt   time.Time
}

// MaxSetNameLen bounds user-supplied set names.
const MaxSetNameLen = 255
