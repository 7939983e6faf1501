package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"visibility-backend/internal/analysis"
	"visibility-backend/internal/clientstate"
	"visibility-backend/internal/events"
	"visibility-backend/internal/providers"
)

// client talks to the API over plain HTTP. Streams are read without a client timeout;
// the caller's context bounds them.
type client struct {
	baseURL string
	token   string
	guestID string
	http    *http.Client
}

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Code, e.Message, e.Status)
}

func (c *client) do(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.guestID != "" {
		req.Header.Set("X-Guest-Id", c.guestID)
	}
	hc := c.http
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error apiError `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)
	body.Error.Status = resp.StatusCode
	return &body.Error
}

func (c *client) providers(ctx context.Context) ([]providers.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/providers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out []providers.Info
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	return out, nil
}

// analyze starts a run and folds each event into the client state, calling onEvent
// after every applied frame. It returns the final state; a stream that ends without a
// terminal event is reported as io.ErrUnexpectedEOF.
func (c *client) analyze(ctx context.Context, body analysis.AnalyzeRequest, onEvent func(events.Event, clientstate.State)) (clientstate.State, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return clientstate.State{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyze", bytes.NewReader(payload))
	if err != nil {
		return clientstate.State{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return clientstate.State{}, err
	}
	defer resp.Body.Close()

	var state clientstate.State
	dec := events.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		switch {
		case errors.Is(err, io.EOF):
			if !state.Done() {
				return state, io.ErrUnexpectedEOF
			}
			return state, nil
		case errors.Is(err, events.ErrUnknownType):
			continue
		case err != nil:
			return state, err
		}
		state = clientstate.Apply(state, ev)
		if onEvent != nil {
			onEvent(ev, state)
		}
		if ev.Terminal() {
			return state, nil
		}
	}
}
