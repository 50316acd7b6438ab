package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
)

func TestHub_DeliversOnlyToUser(t *testing.T) {
	hub := NewHub(2)
	mine := hub.Subscribe("user_1")
	other := hub.Subscribe("user_2")

	require.NoError(t, hub.Deliver(context.Background(), "user_1", dto.NewMailEvent{Subject: "hello"}))

	require.Len(t, mine.C, 1)
	assert.Equal(t, "hello", (<-mine.C).Subject)
	assert.Len(t, other.C, 0)
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe("user_1")

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Deliver(context.Background(), "user_1", dto.NewMailEvent{Count: i}))
	}
	require.Len(t, sub.C, 1)
	assert.Equal(t, 0, (<-sub.C).Count)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe("user_1")
	assert.Equal(t, 1, hub.Subscribers("user_1"))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.Equal(t, 0, hub.Subscribers("user_1"))

	_, open := <-sub.C
	assert.False(t, open)
	assert.NoError(t, hub.Deliver(context.Background(), "user_1", dto.NewMailEvent{}))
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(1)
	first := hub.Subscribe("user_1")
	second := hub.Subscribe("user_2")

	hub.Close()
	hub.Close()

	_, open := <-first.C
	assert.False(t, open)
	_, open = <-second.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("user_1"))

	hub.Unsubscribe(first)
	late := hub.Subscribe("user_1")
	_, open = <-late.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("user_1"))
	assert.NoError(t, hub.Deliver(context.Background(), "user_1", dto.NewMailEvent{}))
}
