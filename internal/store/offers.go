package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erazemk/ponudbe/internal/contracts"
	"github.com/erazemk/ponudbe/internal/model"
)

// ErrDuplicateDate is returned when an offer with the same date already exists.
var ErrDuplicateDate = errors.New("offer with this date already exists")

// SaveOffer inserts an offer document. The insert is atomic: a date that is
// already taken leaves the table untouched and returns ErrDuplicateDate.
func SaveOffer(ctx context.Context, db *sql.DB, offer *model.Offer) error {
	doc, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encoding offer: %w", err)
	}
	if err := contracts.ValidateOffer(doc); err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO offers (date, document) VALUES (?, ?)`,
		offer.Date, string(doc),
	)
	if err != nil {
		return fmt.Errorf("saving offer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking saved offer: %w", err)
	}
	if n == 0 {
		return ErrDuplicateDate
	}
	return nil
}

// GetOffer returns the offer with the given date, or nil if there is none.
func GetOffer(ctx context.Context, db *sql.DB, date int64) (*model.Offer, error) {
	var doc string
	err := db.QueryRowContext(ctx,
		`SELECT document FROM offers WHERE date = ?`, date,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting offer: %w", err)
	}

	offer := &model.Offer{}
	if err := json.Unmarshal([]byte(doc), offer); err != nil {
		return nil, fmt.Errorf("decoding offer %d: %w", date, err)
	}
	return offer, nil
}

// ListOffers returns all offers, newest first.
func ListOffers(ctx context.Context, db *sql.DB) ([]model.Offer, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT date, document FROM offers ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var date int64
		var doc string
		if err := rows.Scan(&date, &doc); err != nil {
			return nil, fmt.Errorf("scanning offer: %w", err)
		}
		var offer model.Offer
		if err := json.Unmarshal([]byte(doc), &offer); err != nil {
			return nil, fmt.Errorf("decoding offer %d: %w", date, err)
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

// OfferStore adapts the offer functions to the offer pipeline.
type OfferStore struct {
	DB *sql.DB
}

// SaveOffer implements offer.Saver.
func (s OfferStore) SaveOffer(ctx context.Context, offer *model.Offer) error {
	return SaveOffer(ctx, s.DB, offer)
}
