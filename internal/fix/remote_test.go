package fix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// fakeRemote is a Remote with happy-path defaults and per-method hooks.
// Hooks receive the 1-based call count of their method.
type fakeRemote struct {
	mu    sync.Mutex
	calls map[string]int

	folderInfoFn func(call int, folderID string) (*api.ItemInfo, error)
	listItemsFn  func(call int, folderID string) ([]api.ItemInfo, error)
	createFn     func(call int, parentID, name string) (*api.ItemInfo, error)
	copyFn       func(call int, token, fileID, destFolderID string) (string, error)
	grantFn      func(call int, asUserID, fileID, principalID string) (string, error)
	listCollabFn func(call int, fileID string) ([]api.CollaborationInfo, error)
	deleteFn     func(call int, collabID string) error
	mintFn       func(call int, userID string) (string, error)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(map[string]int)}
}

func (f *fakeRemote) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.calls[method]
}

func (f *fakeRemote) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRemote) FolderInfo(_ context.Context, folderID string) (*api.ItemInfo, error) {
	n := f.count("folder_info")
	if f.folderInfoFn != nil {
		return f.folderInfoFn(n, folderID)
	}
	return &api.ItemInfo{ID: folderID, Type: "folder", Name: "fix-root"}, nil
}

func (f *fakeRemote) ListFolderItems(_ context.Context, folderID string) ([]api.ItemInfo, error) {
	n := f.count("list_items")
	if f.listItemsFn != nil {
		return f.listItemsFn(n, folderID)
	}
	return nil, nil
}

func (f *fakeRemote) CreateSubfolder(_ context.Context, parentID, name string) (*api.ItemInfo, error) {
	n := f.count("create_subfolder")
	if f.createFn != nil {
		return f.createFn(n, parentID, name)
	}
	return &api.ItemInfo{ID: fmt.Sprintf("folder-%d", n), Type: "folder", Name: name}, nil
}

func (f *fakeRemote) CopyFile(_ context.Context, token, fileID, destFolderID string) (string, error) {
	n := f.count("copy_file")
	if f.copyFn != nil {
		return f.copyFn(n, token, fileID, destFolderID)
	}
	return fmt.Sprintf("copy-%d", n), nil
}

func (f *fakeRemote) AddCollaboration(_ context.Context, asUserID, fileID, principalID, _ string) (string, error) {
	n := f.count("add_collaboration")
	if f.grantFn != nil {
		return f.grantFn(n, asUserID, fileID, principalID)
	}
	return fmt.Sprintf("collab-%d", n), nil
}

func (f *fakeRemote) ListCollaborations(_ context.Context, _, fileID string) ([]api.CollaborationInfo, error) {
	n := f.count("list_collaborations")
	if f.listCollabFn != nil {
		return f.listCollabFn(n, fileID)
	}
	return nil, nil
}

func (f *fakeRemote) DeleteCollaboration(_ context.Context, _, collaborationID string) error {
	n := f.count("delete_collaboration")
	if f.deleteFn != nil {
		return f.deleteFn(n, collaborationID)
	}
	return nil
}

func (f *fakeRemote) MintAccessToken(_ context.Context, userID string) (string, error) {
	n := f.count("mint_token")
	if f.mintFn != nil {
		return f.mintFn(n, userID)
	}
	return fmt.Sprintf("tok-%s-%d", userID, n), nil
}

// transientErr classifies as retryable.
func transientErr() error {
	return errors.New(errors.TypeServer, "remote", errors.NewSimple("bad gateway")).WithCode(502)
}

// copyConflictErr is the "name already in use" outcome adopting id.
func copyConflictErr(existingID string) error {
	return errors.New(errors.TypeConflict, "copy_file", &api.APIError{
		Status:     409,
		Code:       "item_name_in_use",
		Message:    "Item with the same name already exists",
		ConflictID: existingID,
	}).WithCode(409)
}

// createConflictErr is a folder create losing the name race; the conflict
// entry carries the existing folder's id.
func createConflictErr(existingID string) error {
	return errors.New(errors.TypeConflict, "create_subfolder", &api.APIError{
		Status:     409,
		Code:       "item_name_in_use",
		Message:    "Item with the same name already exists",
		ConflictID: existingID,
	}).WithCode(409)
}

// alreadyCollaboratorErr is the grant-step idempotent outcome.
func alreadyCollaboratorErr() error {
	return errors.New(errors.TypeConflict, "add_collaboration", &api.APIError{
		Status:  400,
		Code:    "user_already_collaborator",
		Message: "User is already a collaborator",
	}).WithCode(400)
}

func testPool() []*state.AppUser {
	return []*state.AppUser{
		{BoxUserID: "7001", Login: "au1@boxdevedition.com", Name: "Box fixer-1"},
		{BoxUserID: "7002", Login: "au2@boxdevedition.com", Name: "Box fixer-2"},
	}
}

func testItem(id int64) *state.FixItem {
	return &state.FixItem{
		ID:             id,
		RestoredFileID: fmt.Sprintf("%d00", id),
		FileName:       "report.xlsx",
		OriginalFileID: "900",
		OwnerUserID:    "501",
		OwnerLogin:     "owner@example.com",
		UploaderUserID: "601",
		UploaderEmail:  "uploader@example.com",
		WorkingStatus:  state.StatusBeforeProcess,
	}
}

// testShared builds a shared handle already in WORKING.
func testShared(remote Remote) *Shared {
	s := NewShared(remote, testPool(), "0", 45*time.Minute)
	s.Lifecycle.Set(StageWorking)
	return s
}

// drainLogs empties the log queue and returns the records.
func drainLogs(s *Shared) []LogRecord {
	var out []LogRecord
	for {
		rec, ok := s.Logs.TryPop()
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

// drainCommands empties the command queue and returns the commands.
func drainCommands(s *Shared) []Command {
	var out []Command
	for {
		cmd, ok := s.Commands.TryPop()
		if !ok {
			return out
		}
		out = append(out, cmd)
	}
}
