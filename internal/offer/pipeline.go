// Package offer turns a raw offer submission into a stored offer or a list
// of validation errors.
package offer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/erazemk/ponudbe/internal/imaging"
	"github.com/erazemk/ponudbe/internal/logging"
	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/validate"
)

// Raw is a decoded submission: field values keyed by name plus uploads.
type Raw struct {
	Fields  map[string]any
	Avatar  *model.Upload
	Preview []model.Upload
}

// Saver persists accepted offers.
type Saver interface {
	SaveOffer(ctx context.Context, offer *model.Offer) error
}

// ImageStore keeps uploaded images and hands out references to them.
type ImageStore interface {
	Put(ctx context.Context, u model.Upload) (model.ImageRef, error)
	Delete(ctx context.Context, name string) error
}

// Pipeline validates, normalizes and stores offer submissions.
type Pipeline struct {
	Offers   Saver
	Avatars  ImageStore
	Previews ImageStore

	// Now defaults to time.Now.
	Now func() time.Time
	// NameIndex picks the fallback name for a request; defaults to a random index.
	NameIndex func() int
}

// Submit runs one submission through the pipeline. It returns the stored
// offer, validate.Errors when the submission is rejected, or the store's
// error (such as store.ErrDuplicateDate) when saving fails. Nothing is
// persisted on rejection.
func (p *Pipeline) Submit(ctx context.Context, raw Raw) (*model.Offer, error) {
	log := logging.FromContext(ctx)

	errs := validate.Check(raw.Fields)
	if err := validate.Images(raw.Avatar, raw.Preview); err != nil {
		errs = append(errs, *err)
	}
	if len(errs) > 0 {
		log.Debug("offer rejected", "errors", len(errs))
		return nil, errs
	}

	type storedImage struct {
		store ImageStore
		name  string
	}
	var stored []storedImage
	// Cleanup must outlive a cancelled request.
	rollback := func() {
		cleanupCtx := context.WithoutCancel(ctx)
		for _, img := range stored {
			if err := img.store.Delete(cleanupCtx, img.name); err != nil {
				log.Warn("failed to remove image", "name", img.name, "error", err)
			}
		}
	}

	opts := NormalizeOptions{
		Date:      p.now().UnixMilli(),
		NameIndex: p.nameIndex(),
	}

	if raw.Avatar != nil {
		ref, err := p.Avatars.Put(ctx, *raw.Avatar)
		if err != nil {
			return nil, p.imageFailure(err)
		}
		stored = append(stored, storedImage{p.Avatars, ref.Name})
		opts.Avatar = &ref
	}
	for _, u := range raw.Preview {
		ref, err := p.Previews.Put(ctx, u)
		if err != nil {
			rollback()
			return nil, p.imageFailure(err)
		}
		stored = append(stored, storedImage{p.Previews, ref.Name})
		opts.Preview = append(opts.Preview, ref)
	}

	offer := Normalize(raw.Fields, opts)
	if err := p.Offers.SaveOffer(ctx, &offer); err != nil {
		rollback()
		return nil, err
	}

	log.Info("offer accepted", "date", offer.Date, "images", len(stored))
	return &offer, nil
}

// imageFailure maps undecodable uploads onto the shared images error.
func (p *Pipeline) imageFailure(err error) error {
	if errors.Is(err, imaging.ErrInvalidImage) {
		return validate.Errors{*validate.ImagesError()}
	}
	return fmt.Errorf("storing image: %w", err)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) nameIndex() int {
	if p.NameIndex != nil {
		return p.NameIndex()
	}
	return rand.IntN(len(model.Names))
}
