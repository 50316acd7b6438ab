package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/services/notification"
)

func TestNotificationsStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := notification.NewHub(4)
	h := NewNotificationsHandler(hub, time.Hour, testLogger())
	router := gin.New()
	router.GET("/users/:userId/notifications", h.Stream())

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/users/user_1/notifications", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	assert.Equal(t, 1, hub.Subscribers("user_1"))

	require.NoError(t, hub.Deliver(ctx, "user_1", dto.NewMailEvent{
		Type:      enum.NotificationNewEmail,
		UserID:    "user_1",
		AccountID: "acct_1",
		Subject:   "Quarterly numbers",
	}))

	reader := bufio.NewReader(resp.Body)
	var sawEvent, sawData bool
	for !sawData {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event:") && strings.Contains(line, "new-email") {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, "Quarterly numbers")
			sawData = true
		}
	}

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers("user_1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
