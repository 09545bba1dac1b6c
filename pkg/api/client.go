// Package api is a client for the Ryver data API (the odata.svc endpoint).
// It covers entity listing, chat message posting and the login handshake
// that bootstraps a realtime session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ryver/pkg/cache"
	"ryver/pkg/realtime"
)

// pageSize is the row count requested per page when listing entities.
const pageSize = 50

// Credentials authenticates data API requests. A non-empty Token is sent as
// a bearer token and takes precedence over Username/Password basic auth.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Client talks to one organization's data API.
type Client struct {
	org     string
	baseURL string
	creds   Credentials
	http    *http.Client
	cache   cache.Storage
	logger  *log.Logger
}

// NewClient creates a data API client for the given organization (the
// subdomain of the org's ryver.com address).
func NewClient(org string, creds Credentials) *Client {
	return &Client{
		org:     org,
		baseURL: fmt.Sprintf("https://%s.ryver.com/api/1/odata.svc/", org),
		creds:   creds,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.Default(),
	}
}

// SetCache attaches entity cache storage. Listing calls read through the
// cache and refresh it on a network fetch.
func (c *Client) SetCache(storage cache.Storage) {
	c.cache = storage
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l *log.Logger) {
	c.logger = l
}

// SetHTTPClient replaces the underlying HTTP client. Tests use this to point
// the client at a local server.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// SetBaseURL overrides the API base URL. The default is derived from the
// organization name.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// entityURL builds {base}{objType}({objID})/{action}?{query}. objType, objID
// and action are each optional; pass objID < 0 to omit it.
func (c *Client) entityURL(objType string, objID int64, action string, query url.Values) string {
	u := c.baseURL + objType
	if objID >= 0 {
		u += fmt.Sprintf("(%d)", objID)
	}
	if action != "" {
		if objType != "" {
			u += "/"
		}
		u += action
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	} else {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s", method, rawURL, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// getAll pages through every row of an entity collection.
func (c *Client) getAll(ctx context.Context, objType string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for skip := 0; ; {
		query := url.Values{}
		query.Set("$top", strconv.Itoa(pageSize))
		query.Set("$skip", strconv.Itoa(skip))

		var page struct {
			D struct {
				Results []json.RawMessage `json:"results"`
			} `json:"d"`
		}
		if err := c.do(ctx, http.MethodGet, c.entityURL(objType, -1, "", query), nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.D.Results...)
		if len(page.D.Results) < pageSize {
			return all, nil
		}
		skip += len(page.D.Results)
	}
}

// loadEntities fills out (a pointer to a slice) from the cache when
// available, otherwise from the network, refreshing the cache afterwards.
func (c *Client) loadEntities(ctx context.Context, objType string, out any) error {
	if c.cache != nil {
		blob, ok, err := c.cache.Load(objType)
		if err != nil {
			c.logger.Printf("[API] cache load for %s failed: %v", objType, err)
		} else if ok {
			return json.Unmarshal(blob, out)
		}
	}
	return c.reloadEntities(ctx, objType, out)
}

// reloadEntities fetches an entity collection from the network and updates
// the cache.
func (c *Client) reloadEntities(ctx context.Context, objType string, out any) error {
	rows, err := c.getAll(ctx, objType)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s rows: %w", objType, err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s rows: %w", objType, err)
	}
	if c.cache != nil {
		if err := c.cache.Save(objType, blob); err != nil {
			c.logger.Printf("[API] cache save for %s failed: %v", objType, err)
		}
	}
	return nil
}

// Users lists the organization's users, preferring the cache when one is
// attached.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.loadEntities(ctx, TypeUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ReloadUsers lists users from the network, refreshing the cache.
func (c *Client) ReloadUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.reloadEntities(ctx, TypeUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Forums lists the organization's forums, preferring the cache when one is
// attached.
func (c *Client) Forums(ctx context.Context) ([]Forum, error) {
	var forums []Forum
	if err := c.loadEntities(ctx, TypeForums, &forums); err != nil {
		return nil, err
	}
	return forums, nil
}

// ReloadForums lists forums from the network, refreshing the cache.
func (c *Client) ReloadForums(ctx context.Context) ([]Forum, error) {
	var forums []Forum
	if err := c.reloadEntities(ctx, TypeForums, &forums); err != nil {
		return nil, err
	}
	return forums, nil
}

// Teams lists the organization's teams, preferring the cache when one is
// attached.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.loadEntities(ctx, TypeTeams, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// ReloadTeams lists teams from the network, refreshing the cache.
func (c *Client) ReloadTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.reloadEntities(ctx, TypeTeams, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetObject fetches a single entity by type and id into out.
func (c *Client) GetObject(ctx context.Context, objType string, objID int64, out any) error {
	var wrapper struct {
		D json.RawMessage `json:"d"`
	}
	if err := c.do(ctx, http.MethodGet, c.entityURL(objType, objID, "", nil), nil, &wrapper); err != nil {
		return err
	}
	return json.Unmarshal(wrapper.D, out)
}

// SendChatMessage posts a chat message to a chat over the data API. This is
// the REST fallback for when no realtime session is open.
func (c *Client) SendChatMessage(ctx context.Context, chatType string, chatID int64, text string) error {
	body := map[string]string{"body": text}
	u := c.entityURL(chatType, chatID, "Chat.PostMessage()", nil)
	return c.do(ctx, http.MethodPost, u, body, nil)
}

// LiveSession performs the login handshake and returns an unstarted
// realtime session bound to the chat endpoint the server assigned. The
// caller starts it with Start.
func (c *Client) LiveSession(ctx context.Context, opts realtime.Options) (*realtime.Session, error) {
	var resp struct {
		D struct {
			SessionID string `json:"sessionId"`
			Services  struct {
				Chat string `json:"chat"`
			} `json:"services"`
		} `json:"d"`
	}
	u := c.entityURL("", -1, "User.Login(client='ryver-go')", nil)
	if err := c.do(ctx, http.MethodPost, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.D.SessionID == "" || resp.D.Services.Chat == "" {
		return nil, fmt.Errorf("login: response missing session id or chat endpoint")
	}

	c.logger.Printf("[API] logged in to %s, chat endpoint %s", c.org, resp.D.Services.Chat)
	endpoint := realtime.Endpoint{
		URL:       resp.D.Services.Chat,
		SessionID: resp.D.SessionID,
	}
	return realtime.NewSession(endpoint, opts), nil
}
