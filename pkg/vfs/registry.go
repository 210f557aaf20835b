package vfs

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// MountSource supplies the active mount table. The control plane store
// implements it; tests substitute a fixture.
type MountSource interface {
	ListActiveMounts(ctx context.Context) ([]*models.Mount, error)
	UpdateMountLastUsed(ctx context.Context, id string) error
}

// Resolution is the outcome of resolving a logical path against the mount
// table. Exactly one of Mount or Listing is set: a path inside a mount
// resolves to (Mount, SubPath), while an ancestor directory that no mount
// covers resolves to a synthesized virtual Listing.
type Resolution struct {
	Mount   *models.Mount
	SubPath string

	Virtual bool
	Listing *DirectoryListing
}

// Registry resolves logical paths to mounts. It holds no state of its own;
// every resolution reads the current mount table through the source, so
// admin-side mount changes are visible immediately.
type Registry struct {
	source MountSource
}

// NewRegistry creates a registry over the given mount source.
func NewRegistry(source MountSource) *Registry {
	return &Registry{source: source}
}

// MountsFor returns the active mounts the principal may use, ordered by
// SortOrder ascending, then name.
func (r *Registry) MountsFor(ctx context.Context, principal Principal) ([]*models.Mount, error) {
	all, err := r.source.ListActiveMounts(ctx)
	if err != nil {
		return nil, NewInternalError("listing mounts", err)
	}

	usable := make([]*models.Mount, 0, len(all))
	for _, m := range all {
		if principal.CanUseMount(m.ID, m.CreatedBy) {
			usable = append(usable, m)
		}
	}
	sort.Slice(usable, func(i, j int) bool {
		if usable[i].SortOrder != usable[j].SortOrder {
			return usable[i].SortOrder < usable[j].SortOrder
		}
		return usable[i].Name < usable[j].Name
	})
	return usable, nil
}

// MountByID returns the mount with the given id if the principal may use it.
func (r *Registry) MountByID(ctx context.Context, principal Principal, mountID string) (*models.Mount, error) {
	mounts, err := r.MountsFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	for _, m := range mounts {
		if m.ID == mountID {
			return m, nil
		}
	}
	return nil, NewNotFoundError(mountID, "mount")
}

// Resolve maps a normalized logical path onto the mount table.
//
// The mount whose path is the longest prefix of logicalPath wins; the
// remainder becomes the mount-relative sub-path (always with a leading slash,
// preserving the trailing slash of directory references). When no mount
// matches, a directory reference that is an ancestor of at least one mount
// path resolves to a virtual listing; everything else is NotFound. The root
// always resolves, to an empty virtual listing if need be.
func (r *Registry) Resolve(ctx context.Context, principal Principal, logicalPath string) (*Resolution, error) {
	mounts, err := r.MountsFor(ctx, principal)
	if err != nil {
		return nil, err
	}

	var best *models.Mount
	for _, m := range mounts {
		if !pathWithinMount(logicalPath, m.MountPath) {
			continue
		}
		if best == nil || len(m.MountPath) > len(best.MountPath) {
			best = m
		}
	}
	if best != nil {
		return &Resolution{Mount: best, SubPath: subPathWithin(logicalPath, best.MountPath)}, nil
	}

	if !IsDirectoryPath(logicalPath) {
		return nil, NewNotFoundError(logicalPath, "path")
	}
	listing, ok := r.virtualListing(logicalPath, mounts)
	if !ok {
		return nil, NewNotFoundError(logicalPath, "path")
	}
	return &Resolution{Virtual: true, Listing: listing}, nil
}

// TouchLastUsed records mount usage without blocking the calling operation.
// Failures are logged and dropped.
func (r *Registry) TouchLastUsed(mountID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.source.UpdateMountLastUsed(ctx, mountID); err != nil {
			logger.Debug("failed to update mount last-used time", "mount_id", mountID, "error", err)
		}
	}()
}

// pathWithinMount reports whether logicalPath falls inside mountPath.
// mountPath is stored without a trailing slash.
func pathWithinMount(logicalPath, mountPath string) bool {
	return logicalPath == mountPath ||
		logicalPath == mountPath+"/" ||
		strings.HasPrefix(logicalPath, mountPath+"/")
}

// subPathWithin computes the mount-relative sub-path of logicalPath.
func subPathWithin(logicalPath, mountPath string) string {
	rest := strings.TrimPrefix(logicalPath, mountPath)
	if rest == "" {
		rest = "/"
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return rest
}

// virtualListing synthesizes the listing of an ancestor directory from the
// mount table. Each usable mount directly under dirPath appears as a mount
// entry; mounts deeper down contribute one intermediate virtual directory per
// distinct next segment.
func (r *Registry) virtualListing(dirPath string, mounts []*models.Mount) (*DirectoryListing, bool) {
	listing := &DirectoryListing{
		Path:      dirPath,
		IsVirtual: true,
		IsRoot:    dirPath == "/",
	}

	seen := make(map[string]int) // segment -> index into listing.Items
	covered := false
	for _, m := range mounts {
		mp := m.MountPath + "/"
		if !strings.HasPrefix(mp, dirPath) || mp == dirPath {
			continue
		}
		covered = true

		rel := strings.TrimPrefix(mp, dirPath)
		segment := rel[:strings.Index(rel, "/")]
		entry := Entry{
			Name:        segment,
			Path:        dirPath + segment + "/",
			IsDirectory: true,
			Modified:    m.UpdatedAt,
		}
		if rel == segment+"/" {
			entry.IsMount = true
			entry.MountID = m.ID
		} else {
			entry.IsVirtual = true
		}

		if idx, dup := seen[segment]; dup {
			// A mount entry wins over an intermediate directory with the
			// same name.
			if entry.IsMount && !listing.Items[idx].IsMount {
				listing.Items[idx] = entry
			}
			continue
		}
		seen[segment] = len(listing.Items)
		listing.Items = append(listing.Items, entry)
	}

	if !covered && !listing.IsRoot {
		return nil, false
	}
	if listing.Items == nil {
		listing.Items = []Entry{}
	}
	return listing, true
}
