package keydir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"convokey/internal/domain"
)

// HTTPClient talks to a key directory server on behalf of one logged-in user.
type HTTPClient struct {
	Base string
	HTTP *http.Client

	mu    sync.RWMutex
	user  domain.UserID
	token string
}

// NewHTTPClient returns a client for base. A zero timeout uses 10 seconds.
func NewHTTPClient(base string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: timeout},
	}
}

// Login opens a session for userID; subsequent calls act as that user.
func (c *HTTPClient) Login(ctx context.Context, userID domain.UserID) error {
	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, "/session", sessionRequest{UserID: userID}, &out); err != nil {
		return fmt.Errorf("login %s: %w", userID, err)
	}
	c.mu.Lock()
	c.user, c.token = userID, out.Token
	c.mu.Unlock()
	return nil
}

// User returns the logged-in user, or "" before Login.
func (c *HTTPClient) User() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *HTTPClient) FetchPublicKey(ctx context.Context, userID domain.UserID) (domain.PublishedPublicKey, bool, error) {
	var rec domain.PublishedPublicKey
	err := c.do(ctx, http.MethodGet, "/keys/"+url.PathEscape(userID.String()), nil, &rec)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PublishedPublicKey{}, false, nil
	}
	if err != nil {
		return domain.PublishedPublicKey{}, false, err
	}
	return rec, true, nil
}

func (c *HTTPClient) InsertPublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	return c.do(ctx, http.MethodPost, "/keys", rec, nil)
}

func (c *HTTPClient) UpdatePublicKey(ctx context.Context, rec domain.PublishedPublicKey) error {
	return c.do(ctx, http.MethodPut, "/keys/"+url.PathEscape(rec.UserID.String()), rec, nil)
}

func (c *HTTPClient) ListGroupMembers(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var out membersResponse
	if err := c.do(ctx, http.MethodGet, groupPath(groupID, "/members"), nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// SetGroupMembers replaces the group's member list. The caller must be in
// the new list and, for an existing group, in the current one.
func (c *HTTPClient) SetGroupMembers(ctx context.Context, groupID domain.GroupID, members []domain.UserID) error {
	return c.do(ctx, http.MethodPut, groupPath(groupID, "/members"), membersResponse{Members: members}, nil)
}

// LoadGroupKeyRow only ever sees the logged-in user's row.
func (c *HTTPClient) LoadGroupKeyRow(
	ctx context.Context,
	groupID domain.GroupID,
	userID domain.UserID,
) (domain.GroupKeyRow, bool, error) {
	if userID != c.User() {
		return domain.GroupKeyRow{}, false, fmt.Errorf("load row of %s as %s: %w", userID, c.User(), domain.ErrForbidden)
	}
	var row domain.GroupKeyRow
	err := c.do(ctx, http.MethodGet, groupPath(groupID, "/keys/me"), nil, &row)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.GroupKeyRow{}, false, nil
	}
	if err != nil {
		return domain.GroupKeyRow{}, false, err
	}
	return row, true, nil
}

// UpsertGroupKeyRows posts rows grouped by group ID.
func (c *HTTPClient) UpsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	return c.postRows(ctx, rows, "/keys")
}

// InsertGroupKeyRows posts rows grouped by group ID. Each group's batch is
// all or nothing; a conflict fails with ErrConflict.
func (c *HTTPClient) InsertGroupKeyRows(ctx context.Context, rows []domain.GroupKeyRow) error {
	return c.postRows(ctx, rows, "/keys/new")
}

func (c *HTTPClient) postRows(ctx context.Context, rows []domain.GroupKeyRow, suffix string) error {
	byGroup := make(map[domain.GroupID][]domain.GroupKeyRow)
	var order []domain.GroupID
	for _, row := range rows {
		if _, seen := byGroup[row.GroupID]; !seen {
			order = append(order, row.GroupID)
		}
		byGroup[row.GroupID] = append(byGroup[row.GroupID], row)
	}
	for _, g := range order {
		if err := c.do(ctx, http.MethodPost, groupPath(g, suffix), byGroup[g], nil); err != nil {
			return err
		}
	}
	return nil
}

func (c *HTTPClient) GroupKeyExists(ctx context.Context, groupID domain.GroupID) (bool, error) {
	var out existsResponse
	if err := c.do(ctx, http.MethodGet, groupPath(groupID, "/keys/exists"), nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *HTTPClient) MembersMissingGroupKey(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	var out membersResponse
	if err := c.do(ctx, http.MethodGet, groupPath(groupID, "/keys/missing"), nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// ClaimGroupKeyOrigination claims as the logged-in user; userID must match.
func (c *HTTPClient) ClaimGroupKeyOrigination(ctx context.Context, groupID domain.GroupID, userID domain.UserID) (bool, error) {
	if userID != c.User() {
		return false, fmt.Errorf("claim as %s while logged in as %s: %w", userID, c.User(), domain.ErrForbidden)
	}
	var out claimResponse
	if err := c.do(ctx, http.MethodPost, groupPath(groupID, "/claim"), nil, &out); err != nil {
		return false, err
	}
	return out.Won, nil
}

func (c *HTTPClient) ReleaseGroupKeyOrigination(ctx context.Context, groupID domain.GroupID, userID domain.UserID) error {
	if userID != c.User() {
		return fmt.Errorf("release as %s while logged in as %s: %w", userID, c.User(), domain.ErrForbidden)
	}
	return c.do(ctx, http.MethodDelete, groupPath(groupID, "/claim"), nil, nil)
}

func groupPath(groupID domain.GroupID, suffix string) string {
	return "/groups/" + url.PathEscape(groupID.String()) + suffix
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// statusError maps a non-2xx response onto the domain error taxonomy.
func statusError(method, path string, resp *http.Response) error {
	var e errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity && e.Code == "schema_constraint":
		sentinel = domain.ErrSchemaConstraint
	case resp.StatusCode == http.StatusConflict:
		sentinel = domain.ErrConflict
	case resp.StatusCode == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		sentinel = domain.ErrForbidden
	}
	if sentinel != nil {
		return fmt.Errorf("keydir %s %s: %s: %w", method, path, resp.Status, sentinel)
	}
	if e.Error != "" {
		return fmt.Errorf("keydir %s %s: %s: %s", method, path, resp.Status, e.Error)
	}
	return fmt.Errorf("keydir %s %s: %s", method, path, resp.Status)
}

// Compile-time assertions.
var (
	_ domain.Directory = (*HTTPClient)(nil)
	_ Backend          = (*Memory)(nil)
)
