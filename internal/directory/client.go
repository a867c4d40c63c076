// Package directory is the HTTP client for the user directory service that
// owns accounts and profiles.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blogchat/internal/model"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Lookup resolves a user id to public display data.
func (c *Client) Lookup(ctx context.Context, userID string) (*model.UserPublic, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("directory.Lookup request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory.Lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory.Lookup %s: status %d", userID, resp.StatusCode)
	}

	var u model.UserPublic
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("directory.Lookup decode: %w", err)
	}
	return &u, nil
}

// Search finds users by username prefix, for the new-room picker.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.UserPublic, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/users/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("directory.Search request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory.Search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory.Search: status %d", resp.StatusCode)
	}

	var users []model.UserPublic
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("directory.Search decode: %w", err)
	}
	return users, nil
}
