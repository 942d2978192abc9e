/**
 * Remote service API client
 *
 * High-level operations against the Box-style content API: folder listing
 * and creation, file copy with conflict detection, collaboration management
 * and user provisioning. Every call goes through the rate limiter; retry
 * policy is the caller's job (the fix workers own the bounded retry loops),
 * so this layer reports one classified error per request.
 *
 * Impersonation uses the As-User header on a service-account token, which is
 * how the grant and revoke steps act on behalf of the file's owner.
 *
 * Author: box-fixer team
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
)

const (
	defaultBaseURL   = "https://api.box.com/2.0"
	defaultUploadURL = "https://upload.box.com/api/2.0"

	// Collaboration role granted to app users on the restored file.
	RoleEditor = "editor"
	// Collaboration role granted to uploaders on their result folder.
	RoleViewer = "viewer"

	itemTypeFolder = "folder"
	itemTypeFile   = "file"

	// Page size for folder listings.
	listPageLimit = 1000
)

// Client provides high-level operations for the remote service API.
type Client struct {
	baseURL     string
	uploadURL   string
	httpClient  *http.Client
	auth        *AuthManager
	rateLimiter *RateLimiter
	logger      *logger.Logger
}

// ClientConfig holds client construction options.
type ClientConfig struct {
	BaseURL        string
	UploadURL      string // upload host; file content goes here, not BaseURL
	RequestTimeout time.Duration
	RateLimiter    *RateLimiterConfig
}

// NewClient creates a new API client.
func NewClient(auth *AuthManager, cfg *ClientConfig, log *logger.Logger) *Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		uploadURL:   uploadURL,
		httpClient:  &http.Client{Timeout: timeout},
		auth:        auth,
		rateLimiter: NewRateLimiter(cfg.RateLimiter),
		logger:      log,
	}
}

// ItemInfo is the minimal metadata for a file or folder.
type ItemInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// IsFolder reports whether the item is a folder.
func (i *ItemInfo) IsFolder() bool {
	return i.Type == itemTypeFolder
}

// CollaborationInfo describes one collaboration on an item.
type CollaborationInfo struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	AccessibleBy struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Login string `json:"login"`
	} `json:"accessible_by"`
}

// UserInfo describes a remote user.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

// FolderInfo fetches folder metadata with the service token. Used as the
// startup reachability check for the configured root folder.
func (c *Client) FolderInfo(ctx context.Context, folderID string) (*ItemInfo, error) {
	var item ItemInfo
	err := c.do(ctx, request{
		op:     "get_folder",
		method: http.MethodGet,
		path:   fmt.Sprintf("/folders/%s?fields=id,type,name", folderID),
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListFolderItems returns every item directly under the folder, following
// pagination.
func (c *Client) ListFolderItems(ctx context.Context, folderID string) ([]ItemInfo, error) {
	var items []ItemInfo
	offset := 0

	for {
		var page struct {
			TotalCount int        `json:"total_count"`
			Entries    []ItemInfo `json:"entries"`
		}
		err := c.do(ctx, request{
			op:     "list_folder_items",
			method: http.MethodGet,
			path: fmt.Sprintf("/folders/%s/items?fields=id,type,name&limit=%d&offset=%d",
				folderID, listPageLimit, offset),
		}, &page)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Entries...)
		offset += len(page.Entries)
		if len(page.Entries) == 0 || offset >= page.TotalCount {
			break
		}
	}

	return items, nil
}

// CreateSubfolder creates a folder under the parent. A name collision comes
// back as an idempotent-conflict error carrying the existing folder's id.
func (c *Client) CreateSubfolder(ctx context.Context, parentID, name string) (*ItemInfo, error) {
	payload := map[string]interface{}{
		"name":   name,
		"parent": map[string]string{"id": parentID},
	}

	var item ItemInfo
	err := c.do(ctx, request{
		op:     "create_subfolder",
		method: http.MethodPost,
		path:   "/folders",
		body:   payload,
	}, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CopyFile copies a file into the destination folder using the caller's
// delegated access token and returns the new file id. A same-named existing
// file surfaces as an idempotent-conflict error carrying its id.
func (c *Client) CopyFile(ctx context.Context, accessToken, fileID, destFolderID string) (string, error) {
	payload := map[string]interface{}{
		"parent": map[string]string{"id": destFolderID},
	}

	var item ItemInfo
	err := c.do(ctx, request{
		op:     "copy_file",
		method: http.MethodPost,
		path:   fmt.Sprintf("/files/%s/copy", fileID),
		body:   payload,
		token:  accessToken,
	}, &item)
	if err != nil {
		return "", err
	}
	return item.ID, nil
}

// AddCollaboration adds principalID as a collaborator on the file, acting
// as asUserID (the file's owner). Returns the collaboration id.
func (c *Client) AddCollaboration(ctx context.Context, asUserID, fileID, principalID, role string) (string, error) {
	payload := map[string]interface{}{
		"item": map[string]string{
			"id":   fileID,
			"type": itemTypeFile,
		},
		"accessible_by": map[string]string{
			"id":   principalID,
			"type": "user",
		},
		"role": role,
	}

	var collab CollaborationInfo
	err := c.do(ctx, request{
		op:     "add_collaboration",
		method: http.MethodPost,
		path:   "/collaborations",
		body:   payload,
		asUser: asUserID,
	}, &collab)
	if err != nil {
		return "", err
	}
	return collab.ID, nil
}

// AddFolderCollaboration adds principalID as a collaborator on a folder
// owned by the service account.
func (c *Client) AddFolderCollaboration(ctx context.Context, folderID, principalID, role string) (string, error) {
	payload := map[string]interface{}{
		"item": map[string]string{
			"id":   folderID,
			"type": itemTypeFolder,
		},
		"accessible_by": map[string]string{
			"id":   principalID,
			"type": "user",
		},
		"role": role,
	}

	var collab CollaborationInfo
	err := c.do(ctx, request{
		op:     "add_folder_collaboration",
		method: http.MethodPost,
		path:   "/collaborations",
		body:   payload,
	}, &collab)
	if err != nil {
		return "", err
	}
	return collab.ID, nil
}

// AddFolderCollaborationByLogin adds an external user, identified by login,
// as a collaborator on a folder owned by the service account. Delivery uses
// this to share each uploader's result folder with the uploader.
func (c *Client) AddFolderCollaborationByLogin(ctx context.Context, folderID, login, role string) (string, error) {
	payload := map[string]interface{}{
		"item": map[string]string{
			"id":   folderID,
			"type": itemTypeFolder,
		},
		"accessible_by": map[string]string{
			"login": login,
			"type":  "user",
		},
		"role": role,
	}

	var collab CollaborationInfo
	err := c.do(ctx, request{
		op:     "add_folder_collaboration_by_login",
		method: http.MethodPost,
		path:   "/collaborations",
		body:   payload,
	}, &collab)
	if err != nil {
		return "", err
	}
	return collab.ID, nil
}

// ListFolderCollaborations returns the collaborations on a folder, using
// the service token.
func (c *Client) ListFolderCollaborations(ctx context.Context, folderID string) ([]CollaborationInfo, error) {
	var page struct {
		Entries []CollaborationInfo `json:"entries"`
	}
	err := c.do(ctx, request{
		op:     "list_folder_collaborations",
		method: http.MethodGet,
		path:   fmt.Sprintf("/folders/%s/collaborations", folderID),
	}, &page)
	if err != nil {
		return nil, err
	}
	return page.Entries, nil
}

// ListCollaborations returns the collaborations on a file, acting as
// asUserID.
func (c *Client) ListCollaborations(ctx context.Context, asUserID, fileID string) ([]CollaborationInfo, error) {
	var page struct {
		Entries []CollaborationInfo `json:"entries"`
	}
	err := c.do(ctx, request{
		op:     "list_collaborations",
		method: http.MethodGet,
		path:   fmt.Sprintf("/files/%s/collaborations", fileID),
		asUser: asUserID,
	}, &page)
	if err != nil {
		return nil, err
	}
	return page.Entries, nil
}

// DeleteCollaboration removes one collaboration, acting as asUserID.
func (c *Client) DeleteCollaboration(ctx context.Context, asUserID, collaborationID string) error {
	return c.do(ctx, request{
		op:     "delete_collaboration",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/collaborations/%s", collaborationID),
		asUser: asUserID,
	}, nil)
}

// UploadFile uploads content as a new file in the folder and returns the
// new file's id. A same-named existing file surfaces as an
// idempotent-conflict error carrying its id; callers fall back to
// UpdateFileContents with that id.
func (c *Client) UploadFile(ctx context.Context, folderID, name string, content []byte) (string, error) {
	attrs := map[string]interface{}{
		"name":   name,
		"parent": map[string]string{"id": folderID},
	}
	return c.doUpload(ctx, "upload_file", "/files/content", attrs, name, content)
}

// UpdateFileContents replaces the contents of an existing file, keeping its
// id and name.
func (c *Client) UpdateFileContents(ctx context.Context, fileID string, content []byte) error {
	_, err := c.doUpload(ctx, "update_file_contents",
		fmt.Sprintf("/files/%s/content", fileID), nil, "file", content)
	return err
}

// MintAccessToken mints a delegated access token for the given app user.
func (c *Client) MintAccessToken(ctx context.Context, userID string) (string, error) {
	if err := c.rateLimiter.WaitForAuth(ctx); err != nil {
		return "", errors.New(errors.TypeContext, "mint_access_token", err)
	}

	token, err := c.auth.UserToken(ctx, userID)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// CurrentUser returns the identity behind the service token.
func (c *Client) CurrentUser(ctx context.Context) (*UserInfo, error) {
	var user UserInfo
	if err := c.do(ctx, request{
		op:     "current_user",
		method: http.MethodGet,
		path:   "/users/me",
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateAppUser provisions a platform-access-only app user.
func (c *Client) CreateAppUser(ctx context.Context, name string) (*UserInfo, error) {
	payload := map[string]interface{}{
		"name":                    name,
		"is_platform_access_only": true,
	}

	var user UserInfo
	if err := c.do(ctx, request{
		op:     "create_app_user",
		method: http.MethodPost,
		path:   "/users",
		body:   payload,
	}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a remote user.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, request{
		op:     "delete_user",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/users/%s?force=true", userID),
	}, nil)
}

// SetUnlimitedSpace lifts the storage quota on a user. The service account
// gets this before the copy run so quota never fails a copy.
func (c *Client) SetUnlimitedSpace(ctx context.Context, userID string) error {
	payload := map[string]interface{}{"space_amount": -1}
	return c.do(ctx, request{
		op:     "set_unlimited_space",
		method: http.MethodPut,
		path:   fmt.Sprintf("/users/%s", userID),
		body:   payload,
	}, nil)
}

// doUpload executes a multipart request against the upload host and returns
// the id of the first entry in the response. The upload host speaks the same
// error envelope, so non-2xx responses classify like any other call.
func (c *Client) doUpload(ctx context.Context, op, path string, attrs interface{}, filename string, content []byte) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", errors.New(errors.TypeContext, op, err)
	}

	token, err := c.auth.ServiceToken(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if attrs != nil {
		raw, err := json.Marshal(attrs)
		if err != nil {
			return "", errors.New(errors.TypeConfiguration, op, err)
		}
		if err := mw.WriteField("attributes", string(raw)); err != nil {
			return "", errors.New(errors.TypeUnknown, op, err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.New(errors.TypeUnknown, op, err)
	}
	if _, err := part.Write(content); err != nil {
		return "", errors.New(errors.TypeUnknown, op, err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.New(errors.TypeUnknown, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+path, &buf)
	if err != nil {
		return "", errors.New(errors.TypeConfiguration, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.IsContextError(err) || ctx.Err() != nil {
			return "", errors.New(errors.TypeContext, op, err)
		}
		return "", errors.New(errors.TypeNetwork, op, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Trace("API call", "op", op, "status", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseAPIError(op, resp)
	}

	var page struct {
		Entries []ItemInfo `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return "", errors.New(errors.TypeUnknown, op, fmt.Errorf("decode response: %w", err))
	}
	if len(page.Entries) == 0 {
		return "", nil
	}
	return page.Entries[0].ID, nil
}

// request describes one API call.
type request struct {
	op     string
	method string
	path   string
	body   interface{}
	token  string // explicit bearer token; service token when empty
	asUser string // As-User impersonation header
}

// do executes the request and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.New(errors.TypeContext, r.op, err)
	}

	token := r.token
	if token == "" {
		var err error
		token, err = c.auth.ServiceToken(ctx)
		if err != nil {
			return err
		}
	}

	var bodyReader *bytes.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return errors.New(errors.TypeConfiguration, r.op, err)
		}
		bodyReader = bytes.NewReader(raw)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, bodyReader)
	if err != nil {
		return errors.New(errors.TypeConfiguration, r.op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.asUser != "" {
		req.Header.Set("As-User", r.asUser)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.IsContextError(err) || ctx.Err() != nil {
			return errors.New(errors.TypeContext, r.op, err)
		}
		return errors.New(errors.TypeNetwork, r.op, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Trace("API call", "op", r.op, "status", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(r.op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.TypeUnknown, r.op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
