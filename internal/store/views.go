package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stacyai/kiosk-agent-go/internal/model"
)

// Trip is one past shopping trip shown on the history screen.
type Trip struct {
	ID         int64      `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"-"`
	Date       string     `db:"trip_date" json:"date"`
	TotalItems int        `db:"total_items" json:"totalItems"`
	TotalSpent float64    `db:"total_spent" json:"totalSpent"`
	Items      []TripItem `json:"items"`
}

type TripItem struct {
	ID     int64   `db:"id" json:"-"`
	TripID int64   `db:"trip_id" json:"-"`
	Name   string  `db:"name" json:"name"`
	Price  float64 `db:"price" json:"price"`
}

// WishlistItem mirrors the Offer shape plus bookkeeping fields.
type WishlistItem struct {
	ID              int64     `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"-"`
	Name            string    `db:"name" json:"name"`
	ImageURL        string    `db:"image_url" json:"imageUrl"`
	OriginalPrice   float64   `db:"original_price" json:"originalPrice"`
	DiscountedPrice *float64  `db:"discounted_price" json:"discountedPrice,omitempty"`
	AisleLocation   string    `db:"aisle_location" json:"aisle_location"`
	AddedAt         time.Time `db:"added_at" json:"addedAt"`
}

// AislePin is a map marker position in percent of the map image.
type AislePin struct {
	Aisle   string  `db:"aisle" json:"aisle"`
	TopPct  float64 `db:"top_pct" json:"top"`
	LeftPct float64 `db:"left_pct" json:"left"`
}

// Promo is one idle-screen advertisement.
type Promo struct {
	ID       int64  `db:"id" json:"id"`
	Title    string `db:"title" json:"title"`
	Subtitle string `db:"subtitle" json:"subtitle"`
	ImageURL string `db:"image_url" json:"imageUrl"`
	Accent   string `db:"accent" json:"accent"`
}

// ViewRepository backs the thin presentational screens: profile, shopping
// history, wishlist, store map, and the idle promos.
type ViewRepository interface {
	Profile(ctx context.Context, userID string) (*model.UserProfile, error)
	Trips(ctx context.Context, userID string) ([]Trip, error)
	Wishlist(ctx context.Context, userID string) ([]WishlistItem, error)
	AddWishlistItem(ctx context.Context, userID string, offer model.Offer) (*WishlistItem, error)
	AislePins(ctx context.Context) ([]AislePin, error)
	Promos(ctx context.Context) ([]Promo, error)
}

type viewRepo struct {
	db DBTX
}

func NewViewRepository(db *sqlx.DB) ViewRepository {
	return &viewRepo{db: db}
}

func (r *viewRepo) Profile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := r.db.GetContext(ctx, &profile, `
		SELECT id, name, email, member FROM profiles WHERE id = ?
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *viewRepo) Trips(ctx context.Context, userID string) ([]Trip, error) {
	var trips []Trip
	err := r.db.SelectContext(ctx, &trips, `
		SELECT id, user_id, trip_date, total_items, total_spent FROM trips
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	for i := range trips {
		var items []TripItem
		err := r.db.SelectContext(ctx, &items, `
			SELECT id, trip_id, name, price FROM trip_items WHERE trip_id = ? ORDER BY id
		`, trips[i].ID)
		if err != nil {
			return nil, err
		}
		trips[i].Items = items
	}
	return trips, nil
}

func (r *viewRepo) Wishlist(ctx context.Context, userID string) ([]WishlistItem, error) {
	var items []WishlistItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, user_id, name, image_url, original_price, discounted_price, aisle_location, added_at
		FROM wishlist_items
		WHERE user_id = ?
		ORDER BY added_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *viewRepo) AddWishlistItem(ctx context.Context, userID string, offer model.Offer) (*WishlistItem, error) {
	item := &WishlistItem{
		UserID:          userID,
		Name:            offer.Name,
		ImageURL:        offer.ImageURL,
		OriginalPrice:   offer.OriginalPrice,
		DiscountedPrice: offer.DiscountedPrice,
		AisleLocation:   offer.AisleLocation,
		AddedAt:         time.Now(),
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (user_id, name, image_url, original_price, discounted_price, aisle_location, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.UserID, item.Name, item.ImageURL, item.OriginalPrice, item.DiscountedPrice, item.AisleLocation, item.AddedAt)
	if err != nil {
		return nil, err
	}
	item.ID, _ = result.LastInsertId()
	return item, nil
}

func (r *viewRepo) AislePins(ctx context.Context) ([]AislePin, error) {
	var pins []AislePin
	err := r.db.SelectContext(ctx, &pins, `
		SELECT aisle, top_pct, left_pct FROM aisle_pins ORDER BY aisle
	`)
	if err != nil {
		return nil, err
	}
	return pins, nil
}

func (r *viewRepo) Promos(ctx context.Context) ([]Promo, error) {
	var promos []Promo
	err := r.db.SelectContext(ctx, &promos, `
		SELECT id, title, subtitle, image_url, accent FROM promos ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return promos, nil
}
