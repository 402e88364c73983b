package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type wsMessage struct {
	Feed string          `json:"feed"`
	Data json.RawMessage `json:"data"`
}

// WSHandler returns an http.HandlerFunc that upgrades to a WebSocket and
// writes each relay event as a JSON text frame. Client frames are read only
// to notice disconnects. The same ?feeds= filter as SSEHandler applies.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := feedFilter(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			defer cancel()
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Feed] {
					continue
				}
				data, err := json.Marshal(wsMessage{Feed: evt.Feed, Data: json.RawMessage(evt.Payload)})
				if err != nil {
					continue
				}
				if err := wsutil.WriteServerText(conn, data); err != nil {
					slog.Debug("relay: websocket write failed", "error", err)
					return
				}
			}
		}
	}
}
