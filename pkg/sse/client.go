package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/jsonrpc"
	"github.com/theapemachine/a2a-go/pkg/metrics"
	"github.com/theapemachine/a2a-go/pkg/utils"
)

// Client is the consumer side of message/stream: it issues the JSON-RPC
// request and reads the resulting SSE frames as TaskEvents until the
// final one. Connection attempts that fail before the server accepts the
// request are retried with doubling backoff; once a stream is open the
// request is not reissued, since re-sending the message would append it to
// the task's history a second time.
type Client struct {
	RPC     *jsonrpc.Client
	Metrics *metrics.StreamingMetrics
}

// maxConnectAttempts bounds the total number of connection attempts, the
// first included; the delay between them doubles starting at one second.
const maxConnectAttempts = 3

// NewClient builds a stream consumer for the given JSON-RPC endpoint.
func NewClient(endpoint, token string) *Client {
	return &Client{
		RPC:     &jsonrpc.Client{Endpoint: endpoint, Token: token},
		Metrics: metrics.NewStreamingMetrics(),
	}
}

// Stream sends params via message/stream and invokes handler for every
// TaskEvent in emission order. The returned error is nil once a final=true
// event has been handled.
func (c *Client) Stream(ctx context.Context, params a2a.MessageSendParams, handler func(a2a.TaskEvent)) error {
	body, err := c.connect(ctx, params)
	if err != nil {
		return err
	}
	defer body.Close()

	reader := bufio.NewReader(body)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := utils.ReadSSE(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errors.New("sse: stream ended before final event")
			}
			return err
		}
		if data == "" {
			continue
		}

		var event a2a.TaskEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Warn("sse: skipping malformed event frame", "error", err)
			continue
		}

		eventStart := time.Now()
		handler(event)
		c.Metrics.RecordEvent(false, 0, time.Since(eventStart))

		if event.Final {
			return nil
		}
	}
}

// connect issues the message/stream request, retrying dial/transport-level
// failures with doubling backoff up to maxConnectAttempts.
func (c *Client) connect(ctx context.Context, params a2a.MessageSendParams) (io.ReadCloser, error) {
	delay := time.Second

	for attempt := 1; ; attempt++ {
		start := time.Now()
		body, err := c.RPC.Stream(ctx, "message/stream", params)
		if err == nil {
			c.Metrics.RecordConnection(true, time.Since(start))
			return body, nil
		}
		c.Metrics.RecordConnection(false, time.Since(start))

		if attempt >= maxConnectAttempts {
			return nil, err
		}

		log.Warn("sse: connect failed, retrying", "attempt", attempt, "error", err)
		c.Metrics.RecordReconnection()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}
