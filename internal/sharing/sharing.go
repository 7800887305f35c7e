// Package sharing implements time-bounded public folder shares. A share is a
// bearer token granting read access to a folder subtree until it expires or
// the owner deactivates it.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mkarimof/filedepot/internal/hierarchy"
	"github.com/mkarimof/filedepot/internal/store"
)

var (
	// ErrInvalidDuration is returned for duration strings not matching
	// the <number><unit> form with unit d, h, or m.
	ErrInvalidDuration = errors.New("invalid share duration")

	// ErrShareExists is returned by Create when the folder already has an
	// active, unexpired share. The existing share is returned alongside.
	ErrShareExists = errors.New("active share already exists")

	// ErrShareInvalid is returned when a share exists but is expired or
	// deactivated.
	ErrShareInvalid = errors.New("share expired or deactivated")
)

var durationRe = regexp.MustCompile(`^(\d+)([dhm])$`)

// ParseDuration parses share durations of the form "7d", "12h", "30m".
func ParseDuration(s string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrInvalidDuration
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidDuration
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	}
	return 0, ErrInvalidDuration
}

// Service implements the share lifecycle over a store driver.
type Service struct {
	stores store.Stores
	now    func() time.Time
}

// NewService creates a sharing service.
func NewService(stores store.Stores) *Service {
	return &Service{
		stores: stores,
		now:    time.Now,
	}
}

// Create mints a share for the folder, valid for the given duration. If the
// folder already has an active unexpired share, that share is returned with
// ErrShareExists so the caller can surface the existing token.
func (s *Service) Create(ctx context.Context, ownerID, folderID, duration string) (*store.FolderShare, error) {
	d, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}
	if _, err := s.stores.GetFolder(ctx, folderID, ownerID); err != nil {
		return nil, err
	}

	now := s.now()
	share := &store.FolderShare{
		ID:         uuid.NewString(),
		FolderID:   folderID,
		OwnerID:    ownerID,
		ShareToken: uuid.NewString(),
		IsActive:   true,
		ExpiresAt:  now.Add(d),
		CreatedAt:  now,
	}

	// Check and insert are one store operation; two concurrent creates for
	// the same folder cannot both mint a share.
	created, err := s.stores.CreateShareIfNoneValid(ctx, share, now)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) && created != nil {
			return created, ErrShareExists
		}
		return nil, err
	}
	return created, nil
}

// Resolved is the public view of a share: the shared folder, its descendant
// folders, and every file nested anywhere under it.
type Resolved struct {
	Share   *store.FolderShare
	Folder  *store.Folder
	Folders []*store.Folder
	Files   []*store.File
}

// Resolve redeems a token. Each successful resolution counts exactly one
// access, even under concurrency; an expired or deactivated share is
// ErrShareInvalid and an unknown token is store.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, token string) (*Resolved, error) {
	share, err := s.stores.TouchShare(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrShareInvalid
		}
		return nil, err
	}
	return s.assemble(ctx, share)
}

// Peek returns the share when it is currently valid, without counting an
// access. Used by transports that resolve the same token repeatedly.
func (s *Service) Peek(ctx context.Context, token string) (*store.FolderShare, error) {
	share, err := s.stores.GetShareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !share.Valid(s.now()) {
		return nil, ErrShareInvalid
	}
	return share, nil
}

func (s *Service) assemble(ctx context.Context, share *store.FolderShare) (*Resolved, error) {
	folder, err := s.stores.GetFolder(ctx, share.FolderID, share.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("shared folder: %w", err)
	}
	descendants, err := hierarchy.Descendants(ctx, s.stores, share.OwnerID, share.FolderID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(descendants)+1)
	ids = append(ids, share.FolderID)
	for _, f := range descendants {
		ids = append(ids, f.ID)
	}
	files, err := s.stores.ListFilesInFolders(ctx, share.OwnerID, ids)
	if err != nil {
		return nil, err
	}

	return &Resolved{
		Share:   share,
		Folder:  folder,
		Folders: descendants,
		Files:   files,
	}, nil
}

// ResolveForTransport assembles the listing for an already validated share.
func (s *Service) ResolveForTransport(ctx context.Context, share *store.FolderShare) (*Resolved, error) {
	return s.assemble(ctx, share)
}

// Deactivate turns the share off. Deactivating an already inactive or
// expired share succeeds; the operation is idempotent.
func (s *Service) Deactivate(ctx context.Context, ownerID, token string) (*store.FolderShare, error) {
	share, err := s.ownedShare(ctx, ownerID, token)
	if err != nil {
		return nil, err
	}
	if share.IsActive {
		share.IsActive = false
		if err := s.stores.UpdateShare(ctx, share); err != nil {
			return nil, err
		}
	}
	return share, nil
}

// Extend gives the share a fresh expiry counted from now and reactivates it
// unconditionally, reviving expired and deactivated shares alike.
func (s *Service) Extend(ctx context.Context, ownerID, token, duration string) (*store.FolderShare, error) {
	d, err := ParseDuration(duration)
	if err != nil {
		return nil, err
	}
	share, err := s.ownedShare(ctx, ownerID, token)
	if err != nil {
		return nil, err
	}
	share.ExpiresAt = s.now().Add(d)
	share.IsActive = true
	if err := s.stores.UpdateShare(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

func (s *Service) ownedShare(ctx context.Context, ownerID, token string) (*store.FolderShare, error) {
	share, err := s.stores.GetShareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if share.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	return share, nil
}

// List returns the owner's shares, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*store.FolderShare, error) {
	return s.stores.ListSharesByOwner(ctx, ownerID)
}
