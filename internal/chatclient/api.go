package chatclient

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

	"journey-chat/internal/models"
)

// APIClient talks to the chat HTTP API with the current session's bearer token.
type APIClient struct {
	baseURL  string
	http     *http.Client
	sessions *SessionStore
}

// NewAPIClient builds a client. baseURL includes the version prefix, for
// example http://localhost:8083/v1.
func NewAPIClient(baseURL string, httpClient *http.Client, sessions *SessionStore) *APIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		sessions: sessions,
	}
}

// CreatePrivateRoom resolves or creates the private room of a pair.
func (c *APIClient) CreatePrivateRoom(ctx context.Context, userA, userB int) (models.Room, error) {
	var resp struct {
		Room models.Room `json:"room"`
	}
	body := map[string][]int{"user_ids": {userA, userB}}
	if err := c.do(ctx, http.MethodPost, "/rooms/private", body, &resp); err != nil {
		return models.Room{}, err
	}
	return resp.Room, nil
}

// GroupRoom looks up the room of a group.
func (c *APIClient) GroupRoom(ctx context.Context, groupID int) (models.Room, error) {
	var resp struct {
		Room models.Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/groups/%d/room", groupID), nil, &resp); err != nil {
		return models.Room{}, err
	}
	return resp.Room, nil
}

// RoomMessages fetches the persisted history of a room.
func (c *APIClient) RoomMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Profile fetches the display profile of a user.
func (c *APIClient) Profile(ctx context.Context, userID int) (models.Profile, error) {
	var resp struct {
		User models.Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", userID), nil, &resp); err != nil {
		return models.Profile{}, err
	}
	return resp.User, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session, ok := c.sessions.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return &TransientFetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return &TransientFetchError{Op: op, Status: resp.StatusCode}
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, errorMessage(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&payload); err != nil || payload.Error == "" {
		return "no error detail"
	}
	return payload.Error
}
