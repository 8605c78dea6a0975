package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

const (
	walletPath             = "/api/v1/wallet"
	walletTransactionsPath = "/api/v1/wallet/transactions"
)

// Wallet is the user's cashback balance and reward tokens.
type Wallet struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
	Tokens   int64   `json:"tokens"`
	Pending  float64 `json:"pending"`
}

// Transaction is a single wallet ledger entry.
type Transaction struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Tokens      int64     `json:"tokens"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Wallet returns the wallet summary.
func (c *Client) Wallet(ctx context.Context) (*Wallet, error) {
	resp, err := c.Do(ctx, &Request{Path: walletPath})
	if err != nil {
		return nil, err
	}
	return decodeObject[Wallet](resp.Body, "wallet")
}

// Transactions lists wallet transactions, newest first.
func (c *Client) Transactions(ctx context.Context, page, limit int) ([]Transaction, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.Do(ctx, &Request{Path: walletTransactionsPath, Query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[Transaction](resp.Body, "transactions")
}
