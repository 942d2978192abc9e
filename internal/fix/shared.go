/**
 * Shared run state
 *
 * One explicitly constructed handle holding everything the run's components
 * share: the lifecycle register, the three queues, the credential cache and
 * the directory cache. It is built by the orchestrator and passed to every
 * component at startup, so nothing reaches for ambient globals and each
 * piece can be exercised in isolation.
 *
 * Author: box-fixer team
 */

package fix

import (
	"context"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// Remote is the slice of the content API the fix run consumes. *api.Client
// satisfies it; tests substitute a fake.
type Remote interface {
	FolderInfo(ctx context.Context, folderID string) (*api.ItemInfo, error)
	ListFolderItems(ctx context.Context, folderID string) ([]api.ItemInfo, error)
	CreateSubfolder(ctx context.Context, parentID, name string) (*api.ItemInfo, error)
	CopyFile(ctx context.Context, accessToken, fileID, destFolderID string) (string, error)
	AddCollaboration(ctx context.Context, asUserID, fileID, principalID, role string) (string, error)
	ListCollaborations(ctx context.Context, asUserID, fileID string) ([]api.CollaborationInfo, error)
	DeleteCollaboration(ctx context.Context, asUserID, collaborationID string) error
	MintAccessToken(ctx context.Context, userID string) (string, error)
}

// Shared is the process-wide state visible to every component of a run.
type Shared struct {
	Lifecycle *Lifecycle
	Items     *ItemQueue
	Commands  *CommandQueue
	Logs      *LogQueue
	Tokens    *TokenCache
	Dirs      *DirCache

	// Users is the delegated-identity pool, loaded once at startup and
	// read-only from here on.
	Users []*state.AppUser

	poolIDs map[string]bool
}

// NewShared wires a fresh shared-state handle for one run.
func NewShared(remote Remote, users []*state.AppUser, rootFolderID string, tokenTTL time.Duration) *Shared {
	s := &Shared{
		Lifecycle: NewLifecycle(),
		Items:     &ItemQueue{},
		Commands:  &CommandQueue{},
		Logs:      &LogQueue{},
		Users:     users,
		poolIDs:   make(map[string]bool, len(users)),
	}
	for _, u := range users {
		s.poolIDs[u.BoxUserID] = true
	}
	s.Tokens = NewTokenCache(remote, users, tokenTTL, s.Logs)
	s.Dirs = NewDirCache(remote, rootFolderID)
	return s
}

// InPool reports whether the remote user id belongs to the delegated pool.
func (s *Shared) InPool(userID string) bool {
	return s.poolIDs[userID]
}

// Log pushes one record onto the log queue.
func (s *Shared) Log(level, message string, fields ...interface{}) {
	s.Logs.Push(LogRecord{Level: level, Message: message, Fields: fields})
}
