package domain

import (
	"context"
	"time"
)

// UserRepository defines access methods for users.
type UserRepository interface {
	GetOrCreateByExternalID(ctx context.Context, externalID int64, username string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByExternalID(ctx context.Context, externalID int64) (*User, error)
	// AdjustCredits applies delta to the balance, clamping at zero, and
	// returns the resulting balance. The update is a single atomic row write.
	AdjustCredits(ctx context.Context, userID int64, delta float64) (float64, error)
	SetSelectedRoute(ctx context.Context, userID int64, route Route) error
	List(ctx context.Context, limit, offset int) ([]User, error)
}

// ActionRepository persists the append-only action log.
type ActionRepository interface {
	Append(ctx context.Context, rec *ActionRecord) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]ActionRecord, error)
	List(ctx context.Context, limit, offset int) ([]ActionRecord, error)
	// RouteStats aggregates generation attempts per route since the cutoff.
	RouteStats(ctx context.Context, since time.Time) (map[Route]RouteUsage, error)
}

// RouteUsage is an aggregate over generation attempts for one route.
type RouteUsage struct {
	Requests     int
	CreditsSpent float64
}

// ImageSetRepository persists saved reference-image sets and their images.
type ImageSetRepository interface {
	Create(ctx context.Context, ownerID int64, name string) (*ImageSet, error)
	GetByID(ctx context.Context, id, ownerID int64) (*ImageSet, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]ImageSet, error)
	Delete(ctx context.Context, id, ownerID int64) error
	AddImage(ctx context.Context, setID int64, filePath, contentHash string) (*SetImage, error)
	ListImages(ctx context.Context, setID int64) ([]SetImage, error)
	UpdateImagePath(ctx context.Context, imageID int64, filePath string) error
}

// UploadCacheRepository maps file content hashes to previously obtained
// external reference URLs. One row per hash; a reappearing hash overwrites.
type UploadCacheRepository interface {
	Get(ctx context.Context, contentHash string, now time.Time) (string, bool, error)
	Put(ctx context.Context, contentHash, externalURL string, expiresAt time.Time) error
}

// CreditRequestRepository persists top-up requests.
type CreditRequestRepository interface {
	Create(ctx context.Context, userID int64, amount float64) (*CreditRequest, error)
	GetByID(ctx context.Context, id int64) (*CreditRequest, error)
	ListPending(ctx context.Context, limit int) ([]CreditRequest, error)
	// Resolve flips a pending request to the given terminal status. It
	// returns ErrDuplicateOperation when the request is already resolved.
	Resolve(ctx context.Context, id int64, status CreditRequestStatus) (*CreditRequest, error)
}
