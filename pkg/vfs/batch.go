package vfs

import (
	"context"
	"strings"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
)

// batchTarget is one resolved path of a batch remove, grouped per mount so
// every path is deleted by the driver that owns it.
type batchTarget struct {
	path    string
	subPath string
}

// BatchRemove deletes a set of logical paths. Paths are grouped by resolved
// mount and each group is handed to its own driver; one path's failure does
// not stop the rest. The result always satisfies
// success + len(failed) == len(paths).
func (fs *FileSystem) BatchRemove(ctx context.Context, principal Principal, paths []string) *BatchRemoveResult {
	result := &BatchRemoveResult{Failed: []BatchFailure{}}
	groups := make(map[string][]batchTarget)
	mounts := make(map[string]*mountGroup)

	for _, path := range paths {
		normalized, err := NormalizePath(path, strings.HasSuffix(path, "/"))
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: path, Error: err.Error()})
			continue
		}
		res, err := fs.registry.Resolve(ctx, principal, normalized)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{Path: path, Error: err.Error()})
			continue
		}
		if res.Virtual {
			result.Failed = append(result.Failed, BatchFailure{Path: path, Error: "path is not inside a mount"})
			continue
		}
		groups[res.Mount.ID] = append(groups[res.Mount.ID], batchTarget{path: path, subPath: res.SubPath})
		if _, ok := mounts[res.Mount.ID]; !ok {
			mounts[res.Mount.ID] = &mountGroup{mount: res.Mount}
		}
	}

	for mountID, targets := range groups {
		group := mounts[mountID]
		driver, err := fs.manager.DriverFor(ctx, group.mount)
		var writer Writer
		if err == nil {
			writer, err = asWriter(driver)
		}
		if err != nil {
			for _, target := range targets {
				result.Failed = append(result.Failed, BatchFailure{Path: target.path, Error: err.Error()})
			}
			continue
		}

		for _, target := range targets {
			if err := writer.Remove(ctx, group.mount, target.subPath); err != nil {
				result.Failed = append(result.Failed, BatchFailure{Path: target.path, Error: err.Error()})
				continue
			}
			result.Success++
			group.mutated = true
		}
	}

	for _, group := range mounts {
		if group.mutated {
			fs.finish(group.mount, true)
		}
	}
	return result
}

type mountGroup struct {
	mount   *models.Mount
	mutated bool
}

// BatchCopy copies a set of source/target pairs. Destinations are corrected
// to directory form when the source is a directory; skipExisting defaults to
// true at the API layer. Cross-storage pairs accumulate presigned transfers
// for the caller to execute.
func (fs *FileSystem) BatchCopy(ctx context.Context, principal Principal, items []BatchCopyItem, skipExisting bool) *BatchCopyResult {
	result := &BatchCopyResult{
		Failed:  []BatchFailure{},
		Details: []CopyDetail{},
	}

	for _, item := range items {
		detail := CopyDetail{Source: item.Source, Target: item.Target}
		copied, err := fs.Copy(ctx, principal, item.Source, item.Target, skipExisting)
		if err != nil {
			detail.Status = "failed"
			detail.Error = err.Error()
			result.Failed = append(result.Failed, BatchFailure{Path: item.Source, Error: err.Error()})
			result.Details = append(result.Details, detail)
			continue
		}

		switch copied.Outcome {
		case CopySkipped:
			detail.Status = "skipped"
			result.Skipped++
		case CopyCrossStorage:
			detail.Status = "cross-storage"
			result.CrossStorage = append(result.CrossStorage, *copied.Transfer)
		default:
			detail.Status = "copied"
			result.Success++
		}
		result.Details = append(result.Details, detail)
	}
	return result
}
