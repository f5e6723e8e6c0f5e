package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is the class of marketplace event a record belongs to.
// The "posted_" variants are derived categories: they are emitted after a
// record of the base category has been published and trigger the follow-up
// reply workflow instead of the primary posting workflow.
type Category string

const (
	CategorySale         Category = "sale"
	CategoryRegistration Category = "registration"
	CategoryBid          Category = "bid"

	CategoryPostedSale         Category = "posted_sale"
	CategoryPostedRegistration Category = "posted_registration"
	CategoryPostedBid          Category = "posted_bid"
)

const derivedPrefix = "posted_"

// PrimaryCategories lists the categories that own a per-category queue.
// Order here fixes the order of the startup recovery pass.
func PrimaryCategories() []Category {
	return []Category{CategorySale, CategoryRegistration, CategoryBid}
}

// AllCategories lists every notification channel the listener subscribes to.
func AllCategories() []Category {
	return []Category{
		CategorySale, CategoryRegistration, CategoryBid,
		CategoryPostedSale, CategoryPostedRegistration, CategoryPostedBid,
	}
}

func (c Category) IsValid() bool {
	switch c {
	case CategorySale, CategoryRegistration, CategoryBid,
		CategoryPostedSale, CategoryPostedRegistration, CategoryPostedBid:
		return true
	}
	return false
}

// IsDerived reports whether c is a "posted_" follow-up category.
func (c Category) IsDerived() bool {
	return strings.HasPrefix(string(c), derivedPrefix)
}

// Base returns the primary category a derived category refers to.
// For primary categories it returns the receiver unchanged.
func (c Category) Base() Category {
	return Category(strings.TrimPrefix(string(c), derivedPrefix))
}

// Derived returns the "posted_" counterpart of a primary category.
func (c Category) Derived() Category {
	if c.IsDerived() {
		return c
	}
	return Category(derivedPrefix + string(c))
}

// Channel is the notification channel name the store publishes on for c.
// Channel names equal the category values, so the mapping is the identity;
// the method exists to keep the wire naming in one place.
func (c Category) Channel() string { return string(c) }

// Signal is one "new row" notification from the store: a category plus the
// numeric id of the inserted record. Signals are transient and never persisted.
type Signal struct {
	Category Category
	RecordID int64
}

// ParseSignal converts a raw notification (channel name + payload string)
// into a Signal. The payload must be a decimal record id.
func ParseSignal(channel, payload string) (Signal, error) {
	c := Category(channel)
	if !c.IsValid() {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || id <= 0 {
		return Signal{}, fmt.Errorf("%w: %q", ErrMalformedPayload, payload)
	}
	return Signal{Category: c, RecordID: id}, nil
}

// MarketEvent is the stored marketplace record a signal points at.
// Ownership of the row stays with the ingestion pipeline; this component
// only reads it and flips the delivered flag after a successful post.
type MarketEvent struct {
	ID          int64      `json:"id"`
	Category    Category   `json:"category"`
	Name        string     `json:"name"`
	PriceWei    string     `json:"price_wei"`
	Buyer       string     `json:"buyer,omitempty"`
	Seller      string     `json:"seller,omitempty"`
	TxHash      string     `json:"tx_hash"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ExternalRef *string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Age returns how old the event row is relative to now.
func (e *MarketEvent) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
