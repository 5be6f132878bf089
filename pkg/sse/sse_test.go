package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"AlertDesk/pkg/pubsub"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerCaller(c *gin.Context) (Caller, bool) {
	org, err := strconv.ParseUint(c.GetHeader("X-Test-Org"), 10, 64)
	if err != nil {
		return Caller{}, false
	}
	return Caller{OrganizationID: uint(org)}, true
}

func setup(t *testing.T) (*httptest.Server, *Hub, *pubsub.MemoryBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := pubsub.NewMemoryBus(8)
	hub := NewHub(bus, headerCaller, time.Minute)
	r := gin.New()
	r.GET(RouteAlerts, hub.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		_ = bus.Close()
	})
	return srv, hub, bus
}

func open(t *testing.T, srv *httptest.Server, callerOrg, pathOrg string) *http.Response {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/alerts/organizations/"+pathOrg, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-Org", callerOrg)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRejectsForeignOrganization(t *testing.T) {
	srv, hub, _ := setup(t)

	resp := open(t, srv, "5", "6")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients(6))
}

func TestStreamsOrganizationPayloads(t *testing.T) {
	srv, hub, bus := setup(t)

	resp := open(t, srv, "1", "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return hub.Clients(1) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), pubsub.OrganizationTopic(2), []byte(`{"id":99}`)))
	require.NoError(t, bus.Publish(context.Background(), pubsub.OrganizationTopic(1), []byte(`{"id":1}`)))

	lines := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				lines <- line
			}
		}
	}()

	select {
	case line := <-lines:
		assert.Equal(t, `data: {"id":1}`, line)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
