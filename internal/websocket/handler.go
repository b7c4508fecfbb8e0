package websocket

import (
	"ai-interview-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

// ServeWs binds an upgraded connection to its session and pumps until
// the socket drops. The caller has already validated the session token.
// onReady runs once the connection can receive frames, before any
// inbound message is processed.
func ServeWs(hub *Hub, conn *websocket.Conn, token string, router TurnRouter, log logger.ILogger, onReady func()) {
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Token:  token,
		Send:   make(chan []byte, 256),
		router: router,
		logger: log,
	}
	client.Hub.register <- client

	go client.writePump()
	if onReady != nil {
		onReady()
	}
	client.readPump()
}
