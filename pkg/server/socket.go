package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/logging"
)

// handleBridgeSocket relays bridge traffic between the host page's WebSocket
// and the widget's bus subjects: frames from the socket are published inbound,
// outbound bus events are written back to the socket. The host page may be on
// any origin, so cross-origin accepts are allowed; payload validation happens
// in the bridge, not here.
func (s *Server) handleBridgeSocket(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "bridge bus not configured")
		return
	}

	wid, err := s.getWidget(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	widgetID := wid.ID()

	outbound := make(chan []byte, 64)
	sub, err := s.bus.Subscribe(ctx, bus.OutboundSubject(widgetID), func(msg *bus.Message) []byte {
		select {
		case outbound <- msg.Data:
		default:
			// Slow socket; drop rather than back-pressure the runtime.
		}
		return nil
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Unsubscribe()

	go func() {
		for {
			select {
			case data := <-outbound:
				writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := conn.Write(writeCtx, websocket.MessageText, data)
				cancel()
				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.logger.Debug(logging.CategoryServer, "bridge_socket_closed", "", map[string]any{
				"widget_id": widgetID,
			})
			return
		}
		if err := s.bus.Publish(ctx, bus.InboundSubject(widgetID), data); err != nil {
			s.logger.Warn(logging.CategoryServer, "bridge_publish_failed", err.Error(), map[string]any{
				"widget_id": widgetID,
			})
		}
	}
}
