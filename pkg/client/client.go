// Package client provides a Go SDK for the HarvestLink escrow ledger
// HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry mirrors one escrow ledger record as returned by the API.
type Entry struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transaction_id"`
	FromUserID    int64           `json:"from_user_id"`
	ToUserID      int64           `json:"to_user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Metadata      map[string]any  `json:"metadata"`
	PrevHash      string          `json:"prev_hash"`
	Hash          string          `json:"hash"`
	Status        string          `json:"status"`
	OnChainTxHash string          `json:"on_chain_tx_hash,omitempty"`
	ReleaseNotes  string          `json:"release_notes,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateEscrowRequest is the payload for CreateEscrow.
type CreateEscrowRequest struct {
	FromUserID  int64           `json:"from_user_id"`
	ToUserID    int64           `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// ReleaseRequest is the payload for ReleaseEscrow.
type ReleaseRequest struct {
	OnChainTxHash string `json:"on_chain_tx_hash,omitempty"`
	ReleaseNotes  string `json:"release_notes,omitempty"`
}

// VerifyResult is the outcome of a by-hash verification.
type VerifyResult struct {
	Entry          *Entry `json:"entry"`
	HashValid      bool   `json:"hash_valid"`
	PrevLinkExists bool   `json:"previous_link_exists"`
	IsGenesis      bool   `json:"is_genesis"`
	IntegrityCheck bool   `json:"integrity_check"`
}

// BlockVerification is the per-entry result of a chain walk.
type BlockVerification struct {
	Entry        *Entry `json:"entry"`
	ContentValid bool   `json:"content_valid"`
	LinkValid    bool   `json:"link_valid"`
	BlockValid   bool   `json:"block_valid"`
	IsGenesis    bool   `json:"is_genesis"`
}

// ChainReport aggregates a chain walk.
type ChainReport struct {
	Blocks         []BlockVerification `json:"blocks"`
	TotalBlocks    int                 `json:"total_blocks"`
	ChainIntegrity bool                `json:"chain_integrity"`
	GenesisBlock   bool                `json:"genesis_block"`
}

// RootInfo is the chain overview returned by Root.
type RootInfo struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Stats is the per-user status breakdown.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// UserLedger is the per-user listing.
type UserLedger struct {
	Stats   Stats    `json:"stats"`
	Entries []*Entry `json:"entries"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to the escrow ledger HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the ledger at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEscrow appends a new entry to the ledger.
func (c *Client) CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*Entry, error) {
	var entry Entry
	if err := c.do(ctx, http.MethodPost, "/api/v1/escrow", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReleaseEscrow releases a pending entry.
func (c *Client) ReleaseEscrow(ctx context.Context, id int64, req ReleaseRequest) (*Entry, error) {
	var entry Entry
	path := fmt.Sprintf("/api/v1/escrow/entries/%d/release", id)
	if err := c.do(ctx, http.MethodPost, path, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Entry fetches a single ledger entry by id.
func (c *Client) Entry(ctx context.Context, id int64) (*Entry, error) {
	var entry Entry
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/escrow/entries/%d", id), nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// VerifyHash verifies the entry with the given content hash.
func (c *Client) VerifyHash(ctx context.Context, hash string) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/escrow/verify/"+hash, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chain walks the ledger with per-entry verification.
func (c *Client) Chain(ctx context.Context, limit, offset int) (*ChainReport, error) {
	var report ChainReport
	path := fmt.Sprintf("/api/v1/escrow?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Root returns the chain length and tip hash.
func (c *Client) Root(ctx context.Context) (*RootInfo, error) {
	var info RootInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/escrow/root", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UserLedger lists a user's escrow entries. direction is sent, received
// or all; empty means all.
func (c *Client) UserLedger(ctx context.Context, userID int64, direction string, limit, offset int) (*UserLedger, error) {
	var ledger UserLedger
	path := fmt.Sprintf("/api/v1/escrow/users/%d?direction=%s&limit=%d&offset=%d",
		userID, direction, limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &ledger); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
