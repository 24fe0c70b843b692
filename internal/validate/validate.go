// Package validate checks raw offer fields and image uploads.
//
// Raw values come from either a decoded JSON body or multipart form fields,
// so each validator accepts any of string, json.Number, float64, int64,
// []any or []string and never panics on unexpected input.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/ponudbe/internal/model"
)

var timeOfDay = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type field struct {
	name     string
	required bool
	check    func(any) *Error
}

// fields is the fixed schema in error-reporting order.
var fields = []field{
	{"title", true, Title},
	{"type", true, Type},
	{"price", true, Price},
	{"address", true, Address},
	{"rooms", true, Rooms},
	{"guests", false, Guests},
	{"checkin", true, Checkin},
	{"checkout", true, Checkout},
	{"features", false, Features},
}

// Check runs every field validator against raw and returns all failures in
// schema order. Unknown keys are ignored. A nil result means the fields are valid.
func Check(raw map[string]any) Errors {
	var errs Errors
	for _, f := range fields {
		v, ok := raw[f.name]
		if f.required && (!ok || Empty(v)) {
			errs = append(errs, *required(f.name))
			continue
		}
		if err := f.check(v); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Empty reports whether v counts as absent: nil or the empty string.
func Empty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// Title accepts strings of MinTitle to MaxTitle characters.
func Title(v any) *Error {
	s, ok := v.(string)
	n := utf8.RuneCountInString(s)
	if !ok || n < model.MinTitle || n > model.MaxTitle {
		return invalid("title", fmt.Sprintf("must be a string of %d to %d characters", model.MinTitle, model.MaxTitle))
	}
	return nil
}

// Type accepts one of model.OfferTypes.
func Type(v any) *Error {
	s, ok := v.(string)
	if !ok || !model.IsOfferType(s) {
		return invalid("type", "must be one of: "+strings.Join(model.OfferTypes, ", "))
	}
	return nil
}

// Price accepts integers in [MinPrice, MaxPrice].
func Price(v any) *Error {
	n, ok := Integer(v)
	if !ok || n < model.MinPrice || n > model.MaxPrice {
		return invalid("price", fmt.Sprintf("must be a number from %d to %d", model.MinPrice, model.MaxPrice))
	}
	return nil
}

// Address accepts strings of at most MaxAddressLength characters.
func Address(v any) *Error {
	s, ok := v.(string)
	if !ok || utf8.RuneCountInString(s) > model.MaxAddressLength {
		return invalid("address", fmt.Sprintf("must be a string of at most %d characters", model.MaxAddressLength))
	}
	return nil
}

// Rooms accepts integers in [MinRooms, MaxRooms].
func Rooms(v any) *Error {
	n, ok := Integer(v)
	if !ok || n < model.MinRooms || n > model.MaxRooms {
		return invalid("rooms", fmt.Sprintf("must be a number from %d to %d", model.MinRooms, model.MaxRooms))
	}
	return nil
}

// Guests is optional; when given it must be a non-negative integer.
func Guests(v any) *Error {
	if Empty(v) {
		return nil
	}
	if n, ok := Integer(v); !ok || n < 0 {
		return invalid("guests", "must be a non-negative number")
	}
	return nil
}

// Checkin accepts a 24-hour HH:MM time.
func Checkin(v any) *Error {
	if !isTimeOfDay(v) {
		return invalid("checkin", "must be a time in HH:MM format")
	}
	return nil
}

// Checkout accepts a 24-hour HH:MM time.
func Checkout(v any) *Error {
	if !isTimeOfDay(v) {
		return invalid("checkout", "must be a time in HH:MM format")
	}
	return nil
}

// Features is optional; entries must be unique members of model.Features.
func Features(v any) *Error {
	featuresErr := invalid("features", "must be unique values from: "+strings.Join(model.Features, ", "))
	list, ok := FeatureList(v)
	if !ok {
		return featuresErr
	}
	seen := make(map[string]bool, len(list))
	for _, f := range list {
		if seen[f] || !model.IsFeature(f) {
			return featuresErr
		}
		seen[f] = true
	}
	return nil
}

// FeatureList coerces a raw features value into a list. A single string
// becomes a one-element list; absence becomes an empty list. ok is false
// when v or one of its members is not a string.
func FeatureList(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return []string{}, true
	case string:
		if t == "" {
			return []string{}, true
		}
		return []string{t}, true
	case []string:
		return append([]string{}, t...), true
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			list = append(list, s)
		}
		return list, true
	default:
		return nil, false
	}
}

// Number parses a raw numeric value. Strings are trimmed before parsing.
func Number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Integer parses a raw numeric value that must be integral.
func Integer(v any) (int64, bool) {
	f, ok := Number(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func isTimeOfDay(v any) bool {
	s, ok := v.(string)
	return ok && timeOfDay.MatchString(s)
}
