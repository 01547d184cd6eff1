// Package directory looks up collaborator identities (developers, product
// owners, organizations) from the organization service. Lookups feed the
// event producer; a failed lookup degrades to an absent value, never to a
// propagated error on the task mutation path.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type member struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type organization struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// NewClient creates a directory client for the organization service.
// token, when non-empty, is sent as a bearer credential on every lookup.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DeveloperEmail resolves a developer id to their email address
func (c *Client) DeveloperEmail(ctx context.Context, id int64) (string, error) {
	members, err := c.listMembers(ctx, "/organization/developers")
	if err != nil {
		return "", err
	}
	return findEmail(members, id, "developer")
}

// ProductOwnerEmail resolves a product owner id to their email address
func (c *Client) ProductOwnerEmail(ctx context.Context, id int64) (string, error) {
	members, err := c.listMembers(ctx, "/organization/product-owners")
	if err != nil {
		return "", err
	}
	return findEmail(members, id, "product owner")
}

// MemberEmail resolves any organization member, checking developers first
// and falling back to product owners.
func (c *Client) MemberEmail(ctx context.Context, id int64) (string, error) {
	if email, err := c.DeveloperEmail(ctx, id); err == nil {
		return email, nil
	}
	return c.ProductOwnerEmail(ctx, id)
}

// OrganizationName resolves an organization id to its display name
func (c *Client) OrganizationName(ctx context.Context, id int64) (string, error) {
	var org organization
	if err := c.get(ctx, fmt.Sprintf("/organization/%d", id), &org); err != nil {
		return "", err
	}
	if org.Name != "" {
		return org.Name, nil
	}
	return org.Title, nil
}

func (c *Client) listMembers(ctx context.Context, endpoint string) ([]member, error) {
	var members []member
	if err := c.get(ctx, endpoint, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory %s: %d - %s", endpoint, resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func findEmail(members []member, id int64, label string) (string, error) {
	for _, m := range members {
		if m.ID == id {
			return m.Email, nil
		}
	}
	return "", fmt.Errorf("%s %d not found in organization", label, id)
}
