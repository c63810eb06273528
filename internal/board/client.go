// Package board mirrors tenders onto a Trello board: a small REST client
// for the three calls the service needs, and the reconciliation that
// decides which cards to create.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tenderwatch/sync-service/internal/model"
)

const httpTimeout = 15 * time.Second

// API is the subset of the board service used by the Reconciler.
type API interface {
	CardNames(ctx context.Context) ([]string, error)
	CreateCard(ctx context.Context, listID, name, desc string) (model.Card, error)
	AttachURL(ctx context.Context, cardID, link string) error
}

// APIError is returned when the board answers with a non-2xx status.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: board returned %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to the Trello REST API. Every call is authenticated with the
// key and token query parameters.
type Client struct {
	baseURL string
	key     string
	token   string
	boardID string
	client  *http.Client
}

// NewClient constructs a Client for one board.
func NewClient(baseURL, key, token, boardID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		token:   token,
		boardID: boardID,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// CardNames returns the names of all cards on the board.
func (c *Client) CardNames(ctx context.Context) ([]string, error) {
	params := c.auth()
	params.Set("fields", "name")
	endpoint := fmt.Sprintf("%s/boards/%s/cards?%s", c.baseURL, url.PathEscape(c.boardID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var cards []model.Card
	if err := c.do(req, "list cards", &cards); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cards))
	for _, card := range cards {
		names = append(names, card.Name)
	}
	return names, nil
}

// CreateCard adds a card to listID.
func (c *Client) CreateCard(ctx context.Context, listID, name, desc string) (model.Card, error) {
	form := c.auth()
	form.Set("idList", listID)
	form.Set("name", name)
	form.Set("desc", desc)

	req, err := c.postForm(ctx, c.baseURL+"/cards", form)
	if err != nil {
		return model.Card{}, err
	}

	var card model.Card
	if err := c.do(req, "create card", &card); err != nil {
		return model.Card{}, err
	}
	return card, nil
}

// AttachURL attaches a link to an existing card.
func (c *Client) AttachURL(ctx context.Context, cardID, link string) error {
	form := c.auth()
	form.Set("url", link)

	req, err := c.postForm(ctx, fmt.Sprintf("%s/cards/%s/attachments", c.baseURL, url.PathEscape(cardID)), form)
	if err != nil {
		return err
	}
	return c.do(req, "attach url", nil)
}

func (c *Client) auth() url.Values {
	v := url.Values{}
	v.Set("key", c.key)
	v.Set("token", c.token)
	return v
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a JSON answer into out (skipped when out is nil).
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http %s: %w", op, req.Method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: truncate(body, 512)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: json unmarshal: %w", op, err)
	}
	return nil
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
