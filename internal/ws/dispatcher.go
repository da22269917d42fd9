package ws

import (
	"log"

	"github.com/reelshare/dm-gateway/internal/protocol"
)

// MessageHandler handles one parsed client message. msg is the concrete
// struct returned by protocol.ParseClientMessage.
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming messages to handlers by type. Ping is
// answered internally; malformed or unsupported messages get an error frame
// and the connection stays open.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{handlers: make(map[string]MessageHandler)}
}

// Register associates a MessageHandler with a message type, replacing any
// previous one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's onMessage callback.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error session=%s: %v", conn.ID, err)
		if msgType != "" && !protocol.IsClientType(msgType) {
			SendError(conn, protocol.ErrCodeUnsupported, "unsupported message type")
			return
		}
		SendError(conn, protocol.ErrCodeParse, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q session=%s", msgType, conn.ID)
		SendError(conn, protocol.ErrCodeUnsupported, "unsupported message type")
		return
	}

	handler(conn, msg)
}

// SendError writes a structured error frame. Failures are logged.
func SendError(conn *Connection, code string, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("ws: failed to build error message session=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send error message session=%s: %v", conn.ID, err)
	}
}

func sendPong(conn *Connection) {
	conn.Touch()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Printf("ws: failed to build pong message session=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send pong message session=%s: %v", conn.ID, err)
	}
}
