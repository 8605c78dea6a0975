package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/habedi/rebaton/db"
	"github.com/rs/zerolog/log"
)

const (
	publicDealsPath = "/api/v1/public-deals"
	dealsPath       = "/api/v1/deals"
)

// Deal is a normalized deal, independent of the shape the backend returned.
type Deal struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Store           string          `json:"store"`
	Price           float64         `json:"price"`
	OriginalPrice   float64         `json:"original_price"`
	DiscountPercent float64         `json:"discount_percent"`
	URL             string          `json:"url"`
	Raw             json.RawMessage `json:"-"`
}

// Record converts the deal to its cache representation.
func (d Deal) Record() db.Deal {
	return db.Deal{
		ID:              d.ID,
		Title:           d.Title,
		Store:           d.Store,
		Price:           d.Price,
		OriginalPrice:   d.OriginalPrice,
		DiscountPercent: d.DiscountPercent,
		URL:             d.URL,
		Data:            string(d.Raw),
	}
}

// DealQuery filters a deal listing.
type DealQuery struct {
	Query string
	Store string
	Page  int
	Limit int
}

func (q DealQuery) values() url.Values {
	v := url.Values{}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Store != "" {
		v.Set("store", q.Store)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// DealPage is one page of deals.
type DealPage struct {
	Deals   []Deal
	Page    int
	Total   int
	HasMore bool
}

// PublicDeals lists deals without authentication.
func (c *Client) PublicDeals(ctx context.Context, q DealQuery) (*DealPage, error) {
	return c.fetchDeals(ctx, publicDealsPath, q)
}

// Deals lists the deals tracked for the authenticated user.
func (c *Client) Deals(ctx context.Context, q DealQuery) (*DealPage, error) {
	return c.fetchDeals(ctx, dealsPath, q)
}

// Deal fetches a single deal.
func (c *Client) Deal(ctx context.Context, id string) (*Deal, error) {
	if id == "" {
		return nil, fmt.Errorf("deal ID cannot be empty")
	}
	resp, err := c.Do(ctx, &Request{Path: dealsPath + "/" + url.PathEscape(id)})
	if err != nil {
		return nil, err
	}
	body := resp.Body
	var envelope struct {
		Deal json.RawMessage `json:"deal"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Deal) > 0 {
			body = envelope.Deal
		} else if len(envelope.Data) > 0 && envelope.Data[0] == '{' {
			body = envelope.Data
		}
	}
	deal, err := parseDeal(body)
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *Client) fetchDeals(ctx context.Context, path string, q DealQuery) (*DealPage, error) {
	resp, err := c.Do(ctx, &Request{Path: path, Query: q.values()})
	if err != nil {
		return nil, err
	}
	page, err := ParseDealPage(resp.Body)
	if err != nil {
		return nil, err
	}
	if page.Page == 0 {
		page.Page = max(q.Page, 1)
	}
	log.Info().Str("path", path).Int("count", len(page.Deals)).Int("page", page.Page).Msg("Fetched deals")
	return page, nil
}

// ParseDealPage normalizes a deal listing. It accepts a bare array or an envelope
// with the list under "deals", "items", "results" or "data".
func ParseDealPage(body []byte) (*DealPage, error) {
	var rawList []json.RawMessage
	page := &DealPage{}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &rawList); err != nil {
			return nil, fmt.Errorf("failed to parse deal list: %w", err)
		}
	} else {
		var envelope struct {
			Deals   []json.RawMessage `json:"deals"`
			Items   []json.RawMessage `json:"items"`
			Results []json.RawMessage `json:"results"`
			Data    json.RawMessage   `json:"data"`
			Page    flexFloat         `json:"page"`
			Total   flexFloat         `json:"total"`
			HasMore *bool             `json:"has_more"`
			Next    string            `json:"next"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to parse deal list: %w", err)
		}
		switch {
		case envelope.Deals != nil:
			rawList = envelope.Deals
		case envelope.Items != nil:
			rawList = envelope.Items
		case envelope.Results != nil:
			rawList = envelope.Results
		case len(envelope.Data) > 0 && envelope.Data[0] == '[':
			if err := json.Unmarshal(envelope.Data, &rawList); err != nil {
				return nil, fmt.Errorf("failed to parse deal list: %w", err)
			}
		}
		page.Page = int(envelope.Page)
		page.Total = int(envelope.Total)
		if envelope.HasMore != nil {
			page.HasMore = *envelope.HasMore
		} else {
			page.HasMore = envelope.Next != ""
		}
	}

	page.Deals = make([]Deal, 0, len(rawList))
	for _, raw := range rawList {
		deal, err := parseDeal(raw)
		if err != nil {
			log.Warn().Err(err).Str("body_preview", preview(raw)).Msg("Skipping malformed deal")
			continue
		}
		page.Deals = append(page.Deals, deal)
	}
	if page.Total == 0 {
		page.Total = len(page.Deals)
	}
	return page, nil
}

// rawDeal lists the field names seen across backend versions.
type rawDeal struct {
	ID              flexString `json:"id"`
	UnderscoreID    flexString `json:"_id"`
	Title           string     `json:"title"`
	Name            string     `json:"name"`
	Store           string     `json:"store"`
	Merchant        string     `json:"merchant"`
	Source          string     `json:"source"`
	Price           flexFloat  `json:"price"`
	CurrentPrice    flexFloat  `json:"current_price"`
	SalePrice       flexFloat  `json:"sale_price"`
	OriginalPrice   flexFloat  `json:"original_price"`
	ListPrice       flexFloat  `json:"list_price"`
	RegularPrice    flexFloat  `json:"regular_price"`
	Discount        flexFloat  `json:"discount"`
	DiscountPercent flexFloat  `json:"discount_percent"`
	URL             string     `json:"url"`
	Link            string     `json:"link"`
	DealURL         string     `json:"deal_url"`
}

func parseDeal(raw []byte) (Deal, error) {
	var r rawDeal
	if err := json.Unmarshal(raw, &r); err != nil {
		return Deal{}, fmt.Errorf("failed to parse deal: %w", err)
	}
	d := Deal{
		ID:            firstNonEmpty(string(r.ID), string(r.UnderscoreID)),
		Title:         cleanTitle(firstNonEmpty(r.Title, r.Name)),
		Store:         strings.TrimSpace(firstNonEmpty(r.Store, r.Merchant, r.Source)),
		Price:         firstPositive(r.Price, r.CurrentPrice, r.SalePrice),
		OriginalPrice: firstPositive(r.OriginalPrice, r.ListPrice, r.RegularPrice),
		URL:           firstNonEmpty(r.URL, r.Link, r.DealURL),
		Raw:           append(json.RawMessage(nil), raw...),
	}
	if d.ID == "" {
		return Deal{}, fmt.Errorf("deal has no ID")
	}
	d.DiscountPercent = normalizeDiscount(firstPositive(r.DiscountPercent, r.Discount), d.Price, d.OriginalPrice)
	return d, nil
}

// normalizeDiscount returns a percentage in [0, 100]. Fractions (0.25) are
// scaled, and a missing discount is derived from the two prices.
func normalizeDiscount(discount, price, original float64) float64 {
	if discount > 0 && discount < 1 {
		discount *= 100
	}
	if discount <= 0 && original > 0 && price > 0 && price < original {
		discount = (1 - price/original) * 100
	}
	if discount > 100 {
		discount = 100
	}
	return math.Round(discount*10) / 10
}

func cleanTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstPositive(values ...flexFloat) float64 {
	for _, v := range values {
		if v > 0 {
			return float64(v)
		}
	}
	return 0
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string such as "$19.99" or "25%".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, str)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", str, err)
	}
	*f = flexFloat(v)
	return nil
}
