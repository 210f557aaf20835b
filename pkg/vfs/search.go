package vfs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

const (
	// MinSearchQueryLength is the shortest accepted search query.
	MinSearchQueryLength = 2

	// MaxSearchLimit caps the page size of a search request.
	MaxSearchLimit = 200

	// DefaultSearchPageLimit is applied when the caller omits a limit.
	DefaultSearchPageLimit = 50

	// perMountSearchLimit caps raw hits collected from one mount.
	perMountSearchLimit = 1000

	// maxSearchConcurrency bounds the parallel mount fan-out.
	maxSearchConcurrency = 8
)

// Search runs a filename search across the mounts the scope selects, ranks
// the merged hits by relevance and returns one page. A single mount's failure
// marks the result partial instead of failing the whole search.
func (fs *FileSystem) Search(ctx context.Context, principal Principal, params SearchParams) (*SearchResult, error) {
	query := strings.TrimSpace(params.Query)
	if len(query) < MinSearchQueryLength {
		return nil, NewBadRequestError("search query must be at least 2 characters")
	}
	if params.Limit == 0 {
		params.Limit = DefaultSearchPageLimit
	}
	if params.Limit < 1 || params.Limit > MaxSearchLimit {
		return nil, NewBadRequestError("limit must be between 1 and 200")
	}
	if params.Offset < 0 {
		return nil, NewBadRequestError("offset must not be negative")
	}
	if params.Scope == "" {
		params.Scope = SearchScopeGlobal
	}

	mounts, pathFilter, err := fs.searchScope(ctx, principal, params)
	if err != nil {
		return nil, err
	}

	identity := principal.Identity()
	if fs.search != nil {
		if hits, ok := fs.search.Lookup(query, params.Scope, params.ScopeTarget, identity); ok {
			return paginateHits(hits, params, false), nil
		}
	}

	hits, partial := fs.fanOutSearch(ctx, mounts, query, pathFilter)
	rankHits(hits, query)

	if fs.search != nil && !partial {
		fs.search.Store(query, params.Scope, params.ScopeTarget, identity, hits)
	}
	return paginateHits(hits, params, partial), nil
}

// searchScope resolves the scope parameter to the mount set to fan out to,
// plus an optional logical path prefix filter for directory scopes.
func (fs *FileSystem) searchScope(ctx context.Context, principal Principal, params SearchParams) ([]*models.Mount, string, error) {
	switch params.Scope {
	case SearchScopeGlobal:
		mounts, err := fs.registry.MountsFor(ctx, principal)
		return mounts, "", err

	case SearchScopeMount:
		if params.ScopeTarget == "" {
			return nil, "", NewBadRequestError("mount scope requires a mount id")
		}
		mount, err := fs.registry.MountByID(ctx, principal, params.ScopeTarget)
		if err != nil {
			return nil, "", err
		}
		return []*models.Mount{mount}, "", nil

	case SearchScopeDirectory:
		if params.ScopeTarget == "" {
			return nil, "", NewBadRequestError("directory scope requires a path")
		}
		dir, err := NormalizePath(params.ScopeTarget, true)
		if err != nil {
			return nil, "", err
		}
		res, err := fs.registry.Resolve(ctx, principal, dir)
		if err != nil {
			return nil, "", err
		}
		if !res.Virtual {
			return []*models.Mount{res.Mount}, dir, nil
		}
		// A virtual directory covers every mount beneath it.
		all, err := fs.registry.MountsFor(ctx, principal)
		if err != nil {
			return nil, "", err
		}
		var covered []*models.Mount
		for _, m := range all {
			if strings.HasPrefix(m.MountPath+"/", dir) {
				covered = append(covered, m)
			}
		}
		return covered, dir, nil

	default:
		return nil, "", NewBadRequestError("scope must be one of global, mount, directory")
	}
}

// fanOutSearch queries every mount in parallel. Failures are logged and the
// result is marked partial; no mount can veto the search.
func (fs *FileSystem) fanOutSearch(ctx context.Context, mounts []*models.Mount, query, pathFilter string) ([]SearchHit, bool) {
	var (
		mu      sync.Mutex
		hits    []SearchHit
		partial bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSearchConcurrency)
	for _, mount := range mounts {
		mount := mount
		g.Go(func() error {
			mountHits, err := fs.searchMount(gctx, mount, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.WarnCtx(gctx, "mount search failed", "mount_id", mount.ID, "error", err)
				partial = true
				return nil
			}
			for _, hit := range mountHits {
				if pathFilter != "" && !strings.HasPrefix(hit.Path, pathFilter) {
					continue
				}
				hits = append(hits, hit)
			}
			return nil
		})
	}
	_ = g.Wait()
	return hits, partial
}

func (fs *FileSystem) searchMount(ctx context.Context, mount *models.Mount, query string) ([]SearchHit, error) {
	driver, err := fs.manager.DriverFor(ctx, mount)
	if err != nil {
		return nil, err
	}
	reader, err := asReader(driver)
	if err != nil {
		return nil, err
	}
	return reader.Search(ctx, mount, query, perMountSearchLimit)
}

// rankHits sorts hits in place by relevance: exact filename match, filename
// prefix, filename substring, then path substring; ties break on most
// recently modified.
func rankHits(hits []SearchHit, query string) {
	needle := strings.ToLower(query)
	score := func(h SearchHit) int {
		name := strings.ToLower(h.Name)
		switch {
		case name == needle:
			return 4
		case strings.HasPrefix(name, needle):
			return 3
		case strings.Contains(name, needle):
			return 2
		case strings.Contains(strings.ToLower(h.Path), needle):
			return 1
		default:
			return 0
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		si, sj := score(hits[i]), score(hits[j])
		if si != sj {
			return si > sj
		}
		return hits[i].Modified.After(hits[j].Modified)
	})
}

func paginateHits(hits []SearchHit, params SearchParams, partial bool) *SearchResult {
	total := len(hits)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	page := hits[start:end]
	if page == nil {
		page = []SearchHit{}
	}
	return &SearchResult{
		Total:   total,
		Offset:  params.Offset,
		Limit:   params.Limit,
		Hits:    page,
		Partial: partial,
	}
}
