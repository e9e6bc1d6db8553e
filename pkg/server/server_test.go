package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theapemachine/a2a-go/pkg/a2a"
	"github.com/theapemachine/a2a-go/pkg/scheduler"
	"github.com/theapemachine/a2a-go/pkg/storage"
	"github.com/theapemachine/a2a-go/pkg/taskmanager"
	"github.com/theapemachine/a2a-go/pkg/worker"
)

func newTestServer(handler worker.Handler) *Server {
	tm := taskmanager.New(storage.NewMemoryStorage(), scheduler.NewMemoryScheduler(), handler)
	return New(tm, a2a.AgentCard{Name: "test-agent", Version: "0.0.0", DID: "did:key:test"})
}

func echoHandler(ctx context.Context, history []worker.HistoryRecord, cancel worker.CancelToken) (any, error) {
	return "pong", nil
}

func TestServer_ManifestEndpointServesAgentCard(t *testing.T) {
	s := newTestServer(echoHandler)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/.well-known/agent.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card a2a.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	require.Equal(t, "test-agent", card.Name)
}

func TestServer_StaticAssetsAre404WhenAbsent(t *testing.T) {
	s := newTestServer(echoHandler)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/docs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MessageSendRoundTrip(t *testing.T) {
	s := newTestServer(echoHandler)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"m1","role":"user","kind":"message","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, err := http.Post(ts.URL+"/", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp struct {
		Result a2a.Task `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.Equal(t, a2a.TaskStateCompleted, rpcResp.Result.Status.State)
}

func TestServer_IdentifierMismatchReturnsCode32005(t *testing.T) {
	s := newTestServer(echoHandler)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	first := `{"jsonrpc":"2.0","id":1,"method":"message/send","params":{"message":{"messageId":"00000000-0000-0000-0000-000000000001","contextId":"00000000-0000-0000-0000-000000000002","taskId":"00000000-0000-0000-0000-000000000003","role":"user","kind":"message","parts":[{"kind":"text","text":"hello"}]}}}`
	resp, err := http.Post(ts.URL+"/", "application/json", strings.NewReader(first))
	require.NoError(t, err)
	resp.Body.Close()

	second := `{"jsonrpc":"2.0","id":2,"method":"message/send","params":{"message":{"messageId":"00000000-0000-0000-0000-000000000004","contextId":"00000000-0000-0000-0000-000000000999","taskId":"00000000-0000-0000-0000-000000000003","role":"user","kind":"message","parts":[{"kind":"text","text":"again"}]}}}`
	resp, err = http.Post(ts.URL+"/", "application/json", strings.NewReader(second))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, -32005, rpcResp.Error.Code)
}

func TestServer_MessageStreamDivertsToSSE(t *testing.T) {
	s := newTestServer(echoHandler)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"message/stream","params":{"message":{"messageId":"m1","role":"user","kind":"message","parts":[{"kind":"text","text":"hi"}]}}}`
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", strings.NewReader(body))
	require.NoError(t, err)

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lastEvent a2a.TaskEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "data: ") {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(trimmed, "data: ")), &lastEvent))
		if lastEvent.Final {
			break
		}
	}
	require.True(t, lastEvent.Final)
}
