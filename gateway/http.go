package gateway

import (
	"net/http"

	"github.com/vinayprograms/agentgrid/transport"
)

// ServeHTTP upgrades an incoming worker connection to WebSocket and
// attaches it. Mount the gateway on the path workers dial, typically /ws.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := transport.NewWebSocketUpgrader()
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", map[string]interface{}{
			"remote": r.RemoteAddr, "error": err.Error(),
		})
		return
	}

	t := transport.NewWebSocketTransport(wsConn, g.wsConfig)
	if _, err := g.Attach(t); err != nil {
		t.Close()
	}
}
