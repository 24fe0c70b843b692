package imaging

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/store"
)

// Kind selects where an image is kept and how large it may be.
type Kind string

// Image kinds.
const (
	Avatars  Kind = "avatars"
	Previews Kind = "previews"
)

// MaxDimension returns the largest width or height stored for the kind.
func (k Kind) MaxDimension() int {
	if k == Avatars {
		return 256
	}
	return 1024
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Avatars || k == Previews
}

// Store keeps processed images of one kind in the database.
type Store struct {
	DB   *sql.DB
	Kind Kind
}

// Put processes an upload and stores it, returning a reference to the stored image.
func (s *Store) Put(ctx context.Context, u model.Upload) (model.ImageRef, error) {
	f, err := u.Open()
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("opening upload %s: %w", u.Filename, err)
	}
	defer f.Close()

	res, err := Process(f, s.Kind.MaxDimension())
	if err != nil {
		return model.ImageRef{}, fmt.Errorf("processing %s: %w", u.Filename, err)
	}

	img := &store.Image{
		Name:     fmt.Sprintf("%s/%s.jpg", s.Kind, uuid.NewString()),
		Kind:     string(s.Kind),
		MIME:     res.MIME,
		Checksum: Checksum(res.Data),
		Data:     res.Data,
	}
	if err := store.SaveImage(ctx, s.DB, img); err != nil {
		return model.ImageRef{}, err
	}

	return model.ImageRef{Name: img.Name, MIMEType: img.MIME}, nil
}

// Delete removes a stored image.
func (s *Store) Delete(ctx context.Context, name string) error {
	return store.DeleteImage(ctx, s.DB, name)
}

// Checksum returns the hex-encoded BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
