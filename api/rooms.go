package api

import (
	"context"
	"fmt"
)

// ListRooms returns all rooms the current user participates in
func (c *Client) ListRooms(ctx context.Context) ([]*Room, error) {
	var result []*Room
	if err := c.get(ctx, "/api/chat/rooms", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateGroupRoom creates a new group room. Group rooms are always newly
// created, unlike direct rooms.
func (c *Client) CreateGroupRoom(ctx context.Context, name string, userIDs []string) (*Room, error) {
	var result Room
	req := &CreateRoomRequest{Name: name, UserIDs: userIDs}
	if err := c.post(ctx, "/api/chat/rooms", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateOrGetDirectRoom returns the direct room with the target user,
// creating it if it does not exist yet (idempotent).
func (c *Client) CreateOrGetDirectRoom(ctx context.Context, targetUserID string) (*Room, error) {
	var result Room
	req := &DirectRoomRequest{TargetUserID: targetUserID}
	if err := c.post(ctx, "/api/chat/rooms/direct", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRoom returns a single room
func (c *Client) GetRoom(ctx context.Context, roomID int64) (*Room, error) {
	var result Room
	if err := c.get(ctx, fmt.Sprintf("/api/chat/rooms/%d", roomID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LeaveRoom removes the current user from a room
func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	return c.post(ctx, fmt.Sprintf("/api/chat/rooms/%d/leave", roomID), nil, nil)
}

// InviteUsers invites users into an existing room
func (c *Client) InviteUsers(ctx context.Context, roomID int64, userIDs []string) error {
	req := &InviteRequest{UserIDs: userIDs}
	return c.post(ctx, fmt.Sprintf("/api/chat/rooms/%d/invite", roomID), req, nil)
}
