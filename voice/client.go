package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoCallID signals the provider accepted the request but returned
	// no call identifier to poll on.
	ErrNoCallID = errors.New("voice: provider returned no call id")
	// ErrOutcomeTimeout signals the call was placed but its outcome was
	// not available within the wait budget. The contact must not be
	// retried; only persistence may be.
	ErrOutcomeTimeout = errors.New("voice: timed out waiting for call outcome")
	// ErrUnreachable signals the provider could not be reached at the
	// transport level: no call was created. A run of these means the
	// whole pass is wasted effort and should abort.
	ErrUnreachable = errors.New("voice: provider unreachable")
)

// Client talks to a VAPI-style calling API: POST a call, then poll its
// status until it ends.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	pollInterval time.Duration
	maxWait      time.Duration

	// Caller-ID numbers are rotated round-robin to spread volume across
	// lines and stay under per-number rate limits.
	mu        sync.Mutex
	numberIDs []string
	nextIdx   int
}

// ClientOptions configures the HTTP caller.
type ClientOptions struct {
	BaseURL        string
	APIKey         string
	PhoneNumberIDs []string
	PollInterval   time.Duration
	MaxWait        time.Duration
	HTTPClient     *http.Client
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("voice: missing base URL")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("voice: missing API key")
	}
	if len(opts.PhoneNumberIDs) == 0 {
		return nil, fmt.Errorf("voice: at least one phone number id required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		httpClient:   opts.HTTPClient,
		pollInterval: opts.PollInterval,
		maxWait:      opts.MaxWait,
		numberIDs:    opts.PhoneNumberIDs,
	}, nil
}

type createCallRequest struct {
	AssistantID   string         `json:"assistantId"`
	PhoneNumberID string         `json:"phoneNumberId"`
	Customers     []callCustomer `json:"customers"`
}

type callCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type callState struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	EndedReason string       `json:"endedReason"`
	Analysis    callAnalysis `json:"analysis"`
}

type callAnalysis struct {
	Summary           string `json:"summary"`
	SuccessEvaluation string `json:"successEvaluation"`
}

// PlaceContact creates the call and polls until the provider reports it
// ended, then assembles the outcome from the call analysis.
func (c *Client) PlaceContact(ctx context.Context, contact Contact, scriptVariant string) (Outcome, error) {
	number, err := FormatE164(contact.PhoneNumber)
	if err != nil {
		return Outcome{}, fmt.Errorf("voice: contact %s: %w", contact.EntityID, err)
	}

	callID, err := c.createCall(ctx, number, contact.Name, scriptVariant)
	if err != nil {
		return Outcome{}, err
	}

	return c.waitForOutcome(ctx, callID)
}

func (c *Client) createCall(ctx context.Context, number, name, scriptVariant string) (string, error) {
	payload := createCallRequest{
		AssistantID:   scriptVariant,
		PhoneNumberID: c.nextNumberID(),
		Customers:     []callCustomer{{Number: number, Name: name}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("voice: marshal call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("voice: build call request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: create call: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("voice: create call: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	// The provider returns either a single call object or a results list
	// depending on the endpoint variant.
	var single callState
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("voice: read call response: %w", err)
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.ID != "" {
		return single.ID, nil
	}
	var batch struct {
		Results []callState `json:"results"`
	}
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch.Results) > 0 && batch.Results[0].ID != "" {
		return batch.Results[0].ID, nil
	}

	return "", ErrNoCallID
}

func (c *Client) waitForOutcome(ctx context.Context, callID string) (Outcome, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.getCall(ctx, callID)
		if err == nil && state.Status == "ended" {
			return Outcome{
				Success:     true,
				Summary:     state.Analysis.Summary,
				Evaluation:  strings.ToLower(strings.TrimSpace(state.Analysis.SuccessEvaluation)),
				EndedReason: state.EndedReason,
			}, nil
		}

		if time.Now().After(deadline) {
			return Outcome{}, fmt.Errorf("voice: call %s: %w", callID, ErrOutcomeTimeout)
		}

		select {
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("voice: call %s: %w", callID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) getCall(ctx context.Context, callID string) (callState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/"+callID, nil)
	if err != nil {
		return callState{}, fmt.Errorf("voice: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return callState{}, fmt.Errorf("voice: get call status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return callState{}, fmt.Errorf("voice: get call status: status %d", resp.StatusCode)
	}

	var state callState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return callState{}, fmt.Errorf("voice: decode call status: %w", err)
	}
	return state, nil
}

func (c *Client) nextNumberID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.numberIDs[c.nextIdx]
	c.nextIdx = (c.nextIdx + 1) % len(c.numberIDs)
	return id
}
