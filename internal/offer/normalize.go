package offer

import (
	"strings"

	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/validate"
)

// NormalizeOptions carries the values that don't come from the request fields.
type NormalizeOptions struct {
	Date      int64
	NameIndex int
	Avatar    *model.ImageRef
	Preview   []model.ImageRef
}

// PickName returns the pool name at index, wrapping around the pool.
func PickName(index int) string {
	n := len(model.Names)
	return model.Names[((index%n)+n)%n]
}

// Normalize builds the canonical offer from fields that already passed
// validate.Check.
func Normalize(fields map[string]any, opts NormalizeOptions) model.Offer {
	o := model.Offer{
		Date:     opts.Date,
		Name:     stringField(fields, "name"),
		Title:    stringField(fields, "title"),
		Type:     stringField(fields, "type"),
		Address:  stringField(fields, "address"),
		Checkin:  stringField(fields, "checkin"),
		Checkout: stringField(fields, "checkout"),
		Location: location(fields["location"]),
		Avatar:   opts.Avatar,
		Preview:  opts.Preview,
	}
	o.Price, _ = validate.Integer(fields["price"])
	o.Rooms, _ = validate.Integer(fields["rooms"])
	o.Guests, _ = validate.Integer(fields["guests"])

	if strings.TrimSpace(o.Name) == "" {
		o.Name = PickName(opts.NameIndex)
	}

	o.Features, _ = validate.FeatureList(fields["features"])
	if o.Features == nil {
		o.Features = []string{}
	}
	return o
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// location reads {x, y} leniently; missing or non-numeric coordinates are zero.
func location(v any) model.Location {
	m, ok := v.(map[string]any)
	if !ok {
		return model.Location{}
	}
	var loc model.Location
	loc.X, _ = validate.Number(m["x"])
	loc.Y, _ = validate.Number(m["y"])
	return loc
}
