package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/camerad/internal/events"
)

// sseBuffer bounds the per-connection backlog; events beyond it are dropped
// for that client only.
const sseBuffer = 32

// StreamConnectedEvent is the first event of every stream.
type StreamConnectedEvent struct {
	Message   string `json:"message" example:"event stream connected" doc:"Greeting"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Connection time"`
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time camera lifecycle, disconnect, hotplug and config reload events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":            StreamConnectedEvent{},
		"camera-opened":        events.CameraOpenedEvent{},
		"camera-state-changed": events.CameraStateChangedEvent{},
		"camera-disconnected":  events.CameraDisconnectedEvent{},
		"camera-closed":        events.CameraClosedEvent{},
		"device-hotplug":       events.DeviceHotplugEvent{},
		"config-reloaded":      events.ConfigReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CameraOpenedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraDisconnectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CameraClosedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceHotplugEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(StreamConnectedEvent{
			Message:   "event stream connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
