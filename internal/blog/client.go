// Package blog is the HTTP client for the blog service that owns post data.
package blog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
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

type blogResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt"`
	CoverImage string `json:"cover_image"`
}

// Lookup fetches the post's display summary. Errors here degrade the share
// upstream; they never fail the message append.
func (c *Client) Lookup(ctx context.Context, blogID string) (*model.BlogRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/blogs/"+url.PathEscape(blogID), nil)
	if err != nil {
		return nil, fmt.Errorf("blog.Lookup request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blog.Lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blog.Lookup %s: status %d", blogID, resp.StatusCode)
	}

	var br blogResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("blog.Lookup decode: %w", err)
	}
	return &model.BlogRef{
		BlogID:     blogID,
		Title:      br.Title,
		Excerpt:    br.Excerpt,
		CoverImage: br.CoverImage,
	}, nil
}
