package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Client is a minimal JSON-RPC 2.0 client used by the a2a-go CLI to talk to
// any A2A-compliant agent.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	Token    string

	nextID int
}

// Call issues method with params and decodes the result into out (if
// non-nil).
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	c.nextID++

	payload := Request{JSONRPC: "2.0", ID: mustMarshalID(c.nextID), Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		payload.Params = b
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return errors.New(rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}

	b, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Stream issues method (normally "message/stream") and returns the raw
// response body for the caller to read as a server-sent-event stream
// rather than decoding a single JSON-RPC Response; the server diverts
// streaming methods to an SSE broker instead of a synchronous result.
func (c *Client) Stream(ctx context.Context, method string, params any) (io.ReadCloser, error) {
	if c.HTTP == nil {
		c.HTTP = http.DefaultClient
	}
	c.nextID++

	payload := Request{JSONRPC: "2.0", ID: mustMarshalID(c.nextID), Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		payload.Params = b
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("jsonrpc: stream request failed: %s", resp.Status)
	}
	return resp.Body, nil
}

func mustMarshalID(v int) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("jsonrpc: marshal id: %v", err))
	}
	return b
}
