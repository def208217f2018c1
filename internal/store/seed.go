package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Seed loads the demo catalog used by the kiosk screens. It is idempotent:
// a populated profiles table means the data is already in place.
func Seed(ctx context.Context, db *sqlx.DB) error {
	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM profiles`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, name, email, member) VALUES (?, ?, ?, ?)
	`, "user123", "Alex", "alex.doe@example.com", true); err != nil {
		return err
	}

	trips := []struct {
		date       string
		totalItems int
		totalSpent float64
		items      []struct {
			name  string
			price float64
		}
	}{
		// Oldest first so the latest trip gets the highest id.
		{"July 14, 2025", 21, 152.80, []struct {
			name  string
			price float64
		}{
			{"Women's Athletic Leggings", 25.00},
			{"Scented Candle, Lavender", 15.00},
			{"Grain-Free Dry Dog Food", 35.00},
		}},
		{"July 21, 2025", 8, 54.12, []struct {
			name  string
			price float64
		}{
			{"Noise-Cancelling Headphones", 149.99},
			{"Cola 12-Pack", 8.99},
		}},
		{"July 28, 2025", 12, 89.45, []struct {
			name  string
			price float64
		}{
			{"Organic Whole Milk", 5.99},
			{"Artisan Sourdough Bread", 4.50},
			{"Family Size Potato Chips", 5.00},
		}},
	}
	for _, trip := range trips {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO trips (user_id, trip_date, total_items, total_spent) VALUES (?, ?, ?, ?)
		`, "user123", trip.date, trip.totalItems, trip.totalSpent)
		if err != nil {
			return err
		}
		tripID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		for _, item := range trip.items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO trip_items (trip_id, name, price) VALUES (?, ?, ?)
			`, tripID, item.name, item.price); err != nil {
				return err
			}
		}
	}

	pins := []AislePin{
		{Aisle: "16", TopPct: 48, LeftPct: 50},
		{Aisle: "22", TopPct: 70, LeftPct: 65},
		{Aisle: "23", TopPct: 40, LeftPct: 90},
		{Aisle: "29", TopPct: 60, LeftPct: 90},
	}
	for _, pin := range pins {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO aisle_pins (aisle, top_pct, left_pct) VALUES (?, ?, ?)
		`, pin.Aisle, pin.TopPct, pin.LeftPct); err != nil {
			return err
		}
	}

	promos := []Promo{
		{
			Title:    "Fresh Deals Weekly",
			Subtitle: "Save big on groceries & produce",
			ImageURL: "https://placehold.co/600x400/34d399/ffffff?text=Groceries",
			Accent:   "green",
		},
		{
			Title:    "Back to School",
			Subtitle: "Everything they need for less",
			ImageURL: "https://placehold.co/600x400/60a5fa/ffffff?text=School+Supplies",
			Accent:   "blue",
		},
		{
			Title:    "Game On!",
			Subtitle: "The latest electronics & video games",
			ImageURL: "https://placehold.co/600x400/a78bfa/ffffff?text=Electronics",
			Accent:   "purple",
		},
	}
	for _, promo := range promos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO promos (title, subtitle, image_url, accent) VALUES (?, ?, ?, ?)
		`, promo.Title, promo.Subtitle, promo.ImageURL, promo.Accent); err != nil {
			return err
		}
	}

	return tx.Commit()
}
