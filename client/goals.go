package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const goalsPath = "/api/v1/goals"

// Goal is a savings goal funded by cashback and token rewards.
type Goal struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	TargetAmount  float64    `json:"target_amount"`
	CurrentAmount float64    `json:"current_amount"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	Status        string     `json:"status"`
}

// Progress returns the completed share of the goal in percent.
func (g Goal) Progress() float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	return min(g.CurrentAmount/g.TargetAmount*100, 100)
}

// GoalInput carries the editable fields of a goal.
type GoalInput struct {
	Title        string     `json:"title"`
	TargetAmount float64    `json:"target_amount"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

func goalPath(id string) string { return goalsPath + "/" + url.PathEscape(id) }

// Goals lists the user's goals.
func (c *Client) Goals(ctx context.Context) ([]Goal, error) {
	resp, err := c.Do(ctx, &Request{Path: goalsPath})
	if err != nil {
		return nil, err
	}
	return decodeList[Goal](resp.Body, "goals")
}

// CreateGoal creates a goal.
func (c *Client) CreateGoal(ctx context.Context, in GoalInput) (*Goal, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("goal title cannot be empty")
	}
	req, err := jsonRequest(http.MethodPost, goalsPath, in)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeObject[Goal](resp.Body, "goal")
}

// UpdateGoal replaces the editable fields of a goal.
func (c *Client) UpdateGoal(ctx context.Context, id string, in GoalInput) (*Goal, error) {
	if id == "" {
		return nil, fmt.Errorf("goal ID cannot be empty")
	}
	req, err := jsonRequest(http.MethodPut, goalPath(id), in)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeObject[Goal](resp.Body, "goal")
}

// DeleteGoal removes a goal.
func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("goal ID cannot be empty")
	}
	return c.Delete(ctx, goalPath(id), nil)
}
