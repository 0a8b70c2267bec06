package davsync

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// UploadPlan splits a pass into three disjoint sets.
type UploadPlan struct {
	Uploads   []LocalFileEntry
	Deletes   []ManifestEntry
	Unchanged mapset.Set[string]
}

// PlanUpload diffs the local entries against the remote manifest entries. A
// local file is uploaded when the remote has no entry for its path or the
// digest or size differ; a remote entry is deleted when its path is gone locally.
func PlanUpload(local []LocalFileEntry, remote map[string]ManifestEntry) *UploadPlan {
	plan := &UploadPlan{
		Uploads:   make([]LocalFileEntry, 0),
		Deletes:   make([]ManifestEntry, 0),
		Unchanged: mapset.NewThreadUnsafeSet[string](),
	}

	localPaths := mapset.NewThreadUnsafeSetWithSize[string](len(local))
	for _, entry := range local {
		localPaths.Add(entry.Path)

		r, exists := remote[entry.Path]
		if exists && r.SHA256 == entry.SHA256 && r.Size == entry.Size {
			plan.Unchanged.Add(entry.Path)
			continue
		}
		plan.Uploads = append(plan.Uploads, entry)
	}

	for path, entry := range remote {
		if !localPaths.Contains(path) {
			plan.Deletes = append(plan.Deletes, entry)
		}
	}
	sort.Slice(plan.Deletes, func(i, j int) bool { return plan.Deletes[i].Path < plan.Deletes[j].Path })

	return plan
}

// HasChanges is true when the pass has to touch any data object.
func (p *UploadPlan) HasChanges() bool {
	return len(p.Uploads) > 0 || len(p.Deletes) > 0
}

// UploadBytes is the total size of the files to upload.
func (p *UploadPlan) UploadBytes() int64 {
	var total int64
	for _, entry := range p.Uploads {
		total += entry.Size
	}
	return total
}

// UploadResult summarizes a completed upload pass.
type UploadResult struct {
	PassID        string
	FirstUpload   bool // no manifest existed before this pass
	Files         int
	Uploaded      []string
	Deleted       []string
	Unchanged     int
	BytesUploaded int64
	Manifest      *Manifest
	Duration      time.Duration
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	PassID   string
	Files    int
	Bytes    int64
	Duration time.Duration
}
