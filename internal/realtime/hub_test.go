package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testClient(hub *Hub, eventID uuid.UUID, id string) *Client {
	return &Client{
		ID:      id,
		EventID: eventID,
		hub:     hub,
		send:    make(chan WSMessage, 8),
	}
}

func TestHubRegisterUnregisterViewerCount(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	eventID := uuid.New()

	a := testClient(hub, eventID, "a")
	b := testClient(hub, eventID, "b")
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.ViewerCount(eventID))

	hub.Unregister(a)
	assert.Equal(t, 1, hub.ViewerCount(eventID))
	hub.Unregister(b)
	assert.Equal(t, 0, hub.ViewerCount(eventID))
}

func TestHubBroadcastReachesRoomClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	eventID := uuid.New()
	c := testClient(hub, eventID, "dash")
	hub.Register(c)

	hub.BroadcastToEvent(eventID, "sale", map[string]int{"quantity": 2})

	select {
	case msg := <-c.send:
		assert.Equal(t, "sale", msg.Event)
	default:
		t.Fatal("expected a buffered message")
	}
}

// Exercises broadcast concurrent with clients joining and leaving the
// same room; run with -race.
func TestHubBroadcastConcurrentWithMembershipChanges(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	eventID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		id := fmt.Sprintf("c%d", i)
		go func() {
			defer wg.Done()
			c := testClient(hub, eventID, id)
			hub.Register(c)
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.BroadcastToEvent(eventID, "sale", map[string]int{"n": j})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.ViewerCount(eventID))
}
