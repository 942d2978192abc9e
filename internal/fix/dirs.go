/**
 * Directory resolver
 *
 * Maps (uploader email, owner login) to destination folder ids under the
 * configured root. The first resolution lists the root once to seed the
 * uploader level; the first resolution for a given uploader lists that
 * folder once to seed its owner level. Misses create the folder; a create
 * that loses a name race adopts the existing folder's id from the conflict
 * response. One coarse lock covers every resolve-or-create, which is what
 * guarantees at most one create call per key even with many concurrent
 * workers.
 *
 * Remote failures propagate to the caller unchanged; the resolver never
 * retries.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"sync"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
)

type uploaderEntry struct {
	folderID     string
	owners       map[string]string // owner login -> subfolder id
	ownersSeeded bool
}

// DirCache memoizes destination-folder resolution for one run.
type DirCache struct {
	mu         sync.Mutex
	remote     Remote
	rootID     string
	uploaders  map[string]*uploaderEntry // uploader email -> entry
	rootSeeded bool
}

// NewDirCache builds an empty cache rooted at the given folder.
func NewDirCache(remote Remote, rootFolderID string) *DirCache {
	return &DirCache{
		remote:    remote,
		rootID:    rootFolderID,
		uploaders: make(map[string]*uploaderEntry),
	}
}

// ResolveUploadFolder returns the id of the per-uploader folder directly
// under the root, creating it on first miss.
func (dc *DirCache) ResolveUploadFolder(ctx context.Context, uploaderEmail string) (string, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, err := dc.uploaderEntryLocked(ctx, uploaderEmail)
	if err != nil {
		return "", err
	}
	return entry.folderID, nil
}

// ResolveOwnerSubfolder returns the id of the per-owner folder nested in
// the uploader's folder, creating either level on first miss.
func (dc *DirCache) ResolveOwnerSubfolder(ctx context.Context, uploaderEmail, ownerLogin string) (string, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, err := dc.uploaderEntryLocked(ctx, uploaderEmail)
	if err != nil {
		return "", err
	}

	if !entry.ownersSeeded {
		items, err := dc.remote.ListFolderItems(ctx, entry.folderID)
		if err != nil {
			return "", err
		}
		for _, item := range items {
			if item.IsFolder() {
				entry.owners[item.Name] = item.ID
			}
		}
		entry.ownersSeeded = true
	}

	if id, ok := entry.owners[ownerLogin]; ok {
		return id, nil
	}

	id, _, err := dc.createLocked(ctx, entry.folderID, ownerLogin)
	if err != nil {
		return "", err
	}
	entry.owners[ownerLogin] = id
	return id, nil
}

// createLocked creates a subfolder, adopting the existing folder's id when
// the name is already taken (another process, such as a concurrent
// init-directory run, can create it between our seed listing and the
// create call). Reports whether the folder pre-existed. Called with the
// lock held.
func (dc *DirCache) createLocked(ctx context.Context, parentID, name string) (string, bool, error) {
	created, err := dc.remote.CreateSubfolder(ctx, parentID, name)
	if err != nil {
		if id := api.ConflictID(err); id != "" {
			return id, true, nil
		}
		return "", false, err
	}
	return created.ID, false, nil
}

// uploaderEntryLocked seeds the root level on first use and resolves or
// creates the uploader folder. Called with the lock held.
func (dc *DirCache) uploaderEntryLocked(ctx context.Context, uploaderEmail string) (*uploaderEntry, error) {
	if !dc.rootSeeded {
		items, err := dc.remote.ListFolderItems(ctx, dc.rootID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.IsFolder() {
				dc.uploaders[item.Name] = &uploaderEntry{
					folderID: item.ID,
					owners:   make(map[string]string),
				}
			}
		}
		dc.rootSeeded = true
	}

	if entry, ok := dc.uploaders[uploaderEmail]; ok {
		return entry, nil
	}

	id, preexisted, err := dc.createLocked(ctx, dc.rootID, uploaderEmail)
	if err != nil {
		return nil, err
	}
	entry := &uploaderEntry{
		folderID: id,
		owners:   make(map[string]string),
		// A folder we just created is empty; skip the seeding list call.
		// An adopted pre-existing folder may already hold owner subfolders,
		// so it still gets seeded on first owner resolution.
		ownersSeeded: !preexisted,
	}
	dc.uploaders[uploaderEmail] = entry
	return entry, nil
}
