package client

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

const notificationsPath = "/api/v1/notifications"

// Notification is a message delivered to the user, such as a price drop alert.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifications lists notifications, optionally only the unread ones.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	resp, err := c.Do(ctx, &Request{Path: notificationsPath, Query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[Notification](resp.Body, "notifications")
}

// MarkNotificationRead marks a notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("notification ID cannot be empty")
	}
	return c.Patch(ctx, notificationsPath+"/"+url.PathEscape(id)+"/read", map[string]bool{"read": true}, nil)
}
