package audit

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig holds the send-only Matrix client configuration.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// MatrixSender is a send-only Matrix client.  The assistant never syncs or
// reads rooms; it only posts notices, so the full sync machinery stays off.
type MatrixSender struct {
	client *mautrix.Client
}

// NewMatrixSender creates a send-only client for the homeserver.
func NewMatrixSender(cfg MatrixConfig) (*MatrixSender, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	return &MatrixSender{client: client}, nil
}

// SendNotice sends a notice message (less intrusive than normal messages).
func (s *MatrixSender) SendNotice(roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}

	_, err := s.client.SendMessageEvent(context.Background(), id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}
