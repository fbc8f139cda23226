package api

import "time"

// Room types
const (
	RoomTypeDirect = "DIRECT"
	RoomTypeGroup  = "GROUP"
)

// Message types
const (
	MessageTypeText          = "TEXT"
	MessageTypeTicketPreview = "TICKET_PREVIEW"
	MessageTypeSystem        = "SYSTEM"
)

// Participant represents a room member
type Participant struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// Room represents a chat room
type Room struct {
	ID             int64         `json:"id"`
	RoomType       string        `json:"roomType"`
	Name           string        `json:"name"`
	Participants   []Participant `json:"participants"`
	LastMsgContent string        `json:"lastMsgContent,omitempty"`
	LastMsgSeq     int64         `json:"lastMsgSeq"`
	LastMsgAt      *time.Time    `json:"lastMsgAt,omitempty"`
	UnreadCount    int64         `json:"unreadCount"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// IsGroup reports whether the room is a group room.
func (r *Room) IsGroup() bool {
	return r.RoomType == RoomTypeGroup
}

// DisplayName returns the name to show for the room. A direct room is named
// after the counterpart of currentUserID.
func (r *Room) DisplayName(currentUserID string) string {
	if r.IsGroup() {
		return r.Name
	}
	for _, p := range r.Participants {
		if p.UserID != currentUserID {
			if p.Nickname != "" {
				return p.Nickname
			}
			return p.UserID
		}
	}
	return r.Name
}

// Message represents a chat message. Messages are immutable once delivered;
// ID and Seq are server-assigned, Seq strictly increasing per room.
type Message struct {
	ID             int64     `json:"id"`
	RoomID         int64     `json:"chatRoomId"`
	Seq            int64     `json:"messageSeq"`
	SenderID       string    `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	MessageType    string    `json:"messageType"`
	Content        string    `json:"content"`
	TicketID       *int64    `json:"ticketId,omitempty"`
	TicketTrigger  bool      `json:"ticketTrigger,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessagePage is one page of history, items ordered most-recent-first.
type MessagePage struct {
	Items      []*Message `json:"items"`
	TotalCount int        `json:"totalCount"`
}

// SendMessageRequest represents a send message request
type SendMessageRequest struct {
	Content     string `json:"content"`
	TicketID    *int64 `json:"ticketId,omitempty"`
	MessageType string `json:"messageType"`
	AIEnabled   bool   `json:"aiEnabled"`
}

// CreateRoomRequest represents a group room creation request
type CreateRoomRequest struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
}

// DirectRoomRequest represents a direct room create-or-get request
type DirectRoomRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// InviteRequest represents a room invitation request
type InviteRequest struct {
	UserIDs []string `json:"userIds"`
}

// ReadUpdateRequest marks everything up to MessageSeq as read
type ReadUpdateRequest struct {
	MessageSeq int64 `json:"messageSeq"`
}
