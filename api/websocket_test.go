package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/detect"
)

func dialWebsocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/logtest/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var resp wsResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestWebsocketSessionFlow(t *testing.T) {
	a, manager := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)

	hello := readResponse(t, conn)
	assert.Equal(t, frameSession, hello.Type)
	assert.NotEmpty(t, hello.SessionID)
	assert.Equal(t, 1, manager.Count())

	require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: failLine}))
	resp := readResponse(t, conn)
	assert.Equal(t, frameResult, resp.Type)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Match)
	assert.Equal(t, 100, resp.Result.Match.RuleID)
}

func TestWebsocketFrequencyAcrossFrames(t *testing.T) {
	a, _ := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame

	var last wsResponse
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: failLine}))
		last = readResponse(t, conn)
		require.Equal(t, frameResult, last.Type)
		require.NotNil(t, last.Result.Match)
	}
	assert.Equal(t, 101, last.Result.Match.RuleID)
}

func TestWebsocketPatchRules(t *testing.T) {
	a, _ := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame

	require.NoError(t, conn.WriteJSON(wsRequest{
		Type: framePatchRules,
		Rules: []detect.Spec{
			{ID: 100, Level: 15, DecodedAs: "sshd", Match: "Failed password",
				Fields: []detect.FieldPredicate{{Field: "srcip", Pattern: `.+`}}},
		},
	}))
	resp := readResponse(t, conn)
	assert.Equal(t, frameOK, resp.Type)

	require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: failLine}))
	resp = readResponse(t, conn)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Match)
	assert.Equal(t, 15, resp.Result.Match.Level)
}

func TestWebsocketMalformedFrameKeepsSession(t *testing.T) {
	a, _ := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp := readResponse(t, conn)
	assert.Equal(t, frameError, resp.Type)

	// An unknown frame type is also answered, not fatal.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: "bogus"}))
	resp = readResponse(t, conn)
	assert.Equal(t, frameError, resp.Type)

	// The session is still usable afterwards.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: failLine}))
	resp = readResponse(t, conn)
	assert.Equal(t, frameResult, resp.Type)
}

func TestWebsocketAnalyzeEmptyLineIsErrorFrame(t *testing.T) {
	a, _ := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame

	require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: ""}))
	resp := readResponse(t, conn)
	assert.Equal(t, frameError, resp.Type)
	assert.Contains(t, resp.Error, "malformed")
}

func TestWebsocketDisconnectClosesSession(t *testing.T) {
	a, manager := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame
	require.Equal(t, 1, manager.Count())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return manager.Count() == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWebsocketResponsesArriveInOrder(t *testing.T) {
	a, _ := newTestAPI(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	conn := dialWebsocket(t, srv)
	readResponse(t, conn) // session frame

	lines := []string{
		failLine,
		"kernel: unrelated line",
		"host sshd[5]: Connection closed by 10.0.0.5",
	}
	for _, line := range lines {
		require.NoError(t, conn.WriteJSON(wsRequest{Type: frameAnalyze, Line: line}))
	}

	// One response per request, in submission order.
	first := readResponse(t, conn)
	require.NotNil(t, first.Result)
	assert.NotNil(t, first.Result.Match)

	second := readResponse(t, conn)
	require.NotNil(t, second.Result)
	assert.Nil(t, second.Result.Match)
	assert.Empty(t, second.Result.DecoderPath)

	third := readResponse(t, conn)
	require.NotNil(t, third.Result)
	assert.Nil(t, third.Result.Match)
	assert.Equal(t, []string{"sshd"}, third.Result.DecoderPath)
}
