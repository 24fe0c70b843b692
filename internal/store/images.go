package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Image is a stored image with its metadata.
type Image struct {
	Name     string
	Kind     string
	MIME     string
	Checksum string
	Data     []byte
}

// SaveImage stores image data under a unique name.
func SaveImage(ctx context.Context, db *sql.DB, img *Image) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO images (name, kind, mime, checksum, data) VALUES (?, ?, ?, ?, ?)`,
		img.Name, img.Kind, img.MIME, img.Checksum, img.Data,
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// GetImage returns an image by name, or nil if there is none.
func GetImage(ctx context.Context, db *sql.DB, name string) (*Image, error) {
	img := &Image{}
	err := db.QueryRowContext(ctx,
		`SELECT name, kind, mime, checksum, data FROM images WHERE name = ?`, name,
	).Scan(&img.Name, &img.Kind, &img.MIME, &img.Checksum, &img.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	return img, nil
}

// DeleteImage removes an image. Deleting a missing image is not an error.
func DeleteImage(ctx context.Context, db *sql.DB, name string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM images WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}
