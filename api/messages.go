package api

import (
	"context"
	"fmt"
	"strconv"
)

// GetMessages returns one page of room history, items most-recent-first.
// Pages are 1-based.
func (c *Client) GetMessages(ctx context.Context, roomID int64, page, size int) (*MessagePage, error) {
	query := map[string]string{
		"page": strconv.Itoa(page),
		"size": strconv.Itoa(size),
	}
	var result MessagePage
	if err := c.get(ctx, fmt.Sprintf("/api/chat/rooms/%d/messages", roomID), query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage sends a message over REST and returns the created message with
// its server-assigned id and sequence number. This is the fallback path when
// the real-time channel is down.
func (c *Client) SendMessage(ctx context.Context, roomID int64, req *SendMessageRequest) (*Message, error) {
	r := *req
	if r.MessageType == "" {
		r.MessageType = MessageTypeText
	}
	var result Message
	if err := c.post(ctx, fmt.Sprintf("/api/chat/rooms/%d/messages", roomID), &r, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead advances the read cursor for the room up to seq
func (c *Client) MarkRead(ctx context.Context, roomID, seq int64) error {
	req := &ReadUpdateRequest{MessageSeq: seq}
	return c.put(ctx, fmt.Sprintf("/api/chat/rooms/%d/read", roomID), req, nil)
}
