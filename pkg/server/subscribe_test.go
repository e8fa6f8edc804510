package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/echotree/echotree/pkg/fanout"
	"github.com/echotree/echotree/pkg/wordtree"
)

func newSubscribeServer(t *testing.T, hub *fanout.Hub, opts ...SubscribeOption) (*SubscribeHandler, *httptest.Server) {
	t.Helper()

	h := NewSubscribeHandler(hub, opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + SubscribePath
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readArtifact(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func TestWebSocketSubscriberReceivesCurrentThenUpdates(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub)

	conn := dial(t, srv)
	require.JSONEq(t, wordtree.EmptyArtifact, readArtifact(t, conn))

	_, err := p.SubmitWord(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, "ant", gjson.Get(readArtifact(t, conn), "word").String())

	t.Run("late_subscriber_gets_current_artifact", func(t *testing.T) {
		late := dial(t, srv)
		require.Equal(t, p.Current().Data, readArtifact(t, late))
	})
}

func TestWebSocketSubscriberIsolation(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub)

	gone := dial(t, srv)
	stays := dial(t, srv)
	readArtifact(t, gone)
	readArtifact(t, stays)
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 2 }, timeout, tick)

	require.NoError(t, gone.Close())
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 1 }, timeout, tick)

	result, err := p.SubmitWord(context.Background(), "hill")
	require.NoError(t, err)
	require.Equal(t, OutcomePublished, result.Outcome)
	require.Equal(t, "hill", gjson.Get(readArtifact(t, stays), "word").String())
}

func TestWebSocketWordSubmission(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub, WithWordSubmission(p))

	conn := dial(t, srv)
	readArtifact(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ant")))
	require.Equal(t, "ant", gjson.Get(readArtifact(t, conn), "word").String())
}

func TestWebSocketDisconnectDuringSubmittedBuild(t *testing.T) {
	builder := newGatedBuilder()
	p := NewPublisher(fanout.NewHub(), builder)
	t.Cleanup(p.Close)
	_, srv := newSubscribeServer(t, p.hub, WithWordSubmission(p), WithWriteTimeout(time.Minute))

	conn := dial(t, srv)
	readArtifact(t, conn)
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 1 }, timeout, tick)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ant")))
	require.Equal(t, "ant", <-builder.started)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 0 }, timeout, tick)

	builder.gate <- struct{}{}
	require.Eventually(t, func() bool { return p.Current().Seq == 1 }, timeout, tick)
}

func TestWebSocketWordSubmissionDisabled(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub)

	conn := dial(t, srv)
	readArtifact(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ant")))

	// A ping round trip proves the frame was read before checking nothing was published.
	pong := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		close(pong)
		return nil
	})
	require.NoError(t, conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)))
	go func() {
		_, _, _ = conn.ReadMessage()
	}()
	<-pong

	require.Equal(t, uint64(0), p.Current().Seq)
}

func TestWebSocketCloseSendsGoingAway(t *testing.T) {
	p := newAntPublisher(t)
	h, srv := newSubscribeServer(t, p.hub)

	conn := dial(t, srv)
	readArtifact(t, conn)
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 1 }, timeout, tick)

	h.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	require.Eventually(t, func() bool { return p.hub.Subscribers() == 0 }, timeout, tick)
}

func TestWebSocketPing(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub, WithPingInterval(20*time.Millisecond))

	conn := dial(t, srv)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(timeout))
	})

	readArtifact(t, conn)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(timeout):
		t.Fatal("no ping received")
	}
}

func TestEventStreamSubscriber(t *testing.T) {
	p := newAntPublisher(t)
	_, srv := newSubscribeServer(t, p.hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+SubscribeEventsPath, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() (id, event, data string) {
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if event != "" {
					return id, event, data
				}
			case strings.HasPrefix(line, "id: "):
				id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data += strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatalf("event stream ended: %v", scanner.Err())
		return "", "", ""
	}

	id, event, data := readEvent()
	require.Equal(t, "0", id)
	require.Equal(t, SSEEventName, event)
	require.JSONEq(t, wordtree.EmptyArtifact, data)

	_, err = p.SubmitWord(context.Background(), "ant")
	require.NoError(t, err)

	id, _, data = readEvent()
	require.Equal(t, "1", id)
	require.Equal(t, "ant", gjson.Get(data, "word").String())
}

func TestSubscribeHealth(t *testing.T) {
	_, srv := newSubscribeServer(t, fanout.NewHub())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
