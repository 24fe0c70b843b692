package model

import "io"

// Offer is a single listing. Date (epoch milliseconds) is its unique key.
type Offer struct {
	Date     int64      `json:"date"`
	Name     string     `json:"name"`
	Title    string     `json:"title"`
	Type     string     `json:"type"`
	Price    int64      `json:"price"`
	Address  string     `json:"address"`
	Rooms    int64      `json:"rooms"`
	Guests   int64      `json:"guests"`
	Checkin  string     `json:"checkin"`
	Checkout string     `json:"checkout"`
	Features []string   `json:"features"`
	Location Location   `json:"location"`
	Avatar   *ImageRef  `json:"avatar,omitempty"`
	Preview  []ImageRef `json:"preview,omitempty"`
}

// Location is a point on the listing map.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ImageRef points to an image kept by the image store.
type ImageRef struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimetype"`
}

// Upload describes an uploaded file as declared by the client. Open returns
// the file content; the caller closes it.
type Upload struct {
	Filename string
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

// Offer field bounds.
const (
	MinTitle         = 30
	MaxTitle         = 140
	MinPrice         = 1
	MaxPrice         = 100000
	MaxAddressLength = 100
	MinRooms         = 0
	MaxRooms         = 1000
)

// Offer types.
const (
	OfferTypeFlat     = "flat"
	OfferTypeHouse    = "house"
	OfferTypeBungalow = "bungalow"
	OfferTypePalace   = "palace"
)

// OfferTypes lists the accepted offer types in display order.
var OfferTypes = []string{OfferTypeFlat, OfferTypeHouse, OfferTypeBungalow, OfferTypePalace}

// Features is the feature vocabulary.
var Features = []string{"wifi", "dishwasher", "parking", "washer", "elevator", "conditioner"}

// ImageMIMETypes lists the declared MIME types accepted for avatar and preview uploads.
var ImageMIMETypes = []string{"image/jpeg", "image/jpg", "image/png"}

// Names is the pool used when an offer is submitted without a name.
var Names = []string{"Keks", "Pavel", "Nikolay", "Alex", "Ulyana", "Anastasyia", "Julia"}

// IsOfferType reports whether t is a known offer type.
func IsOfferType(t string) bool {
	return contains(OfferTypes, t)
}

// IsFeature reports whether f belongs to the feature vocabulary.
func IsFeature(f string) bool {
	return contains(Features, f)
}

// IsImageMIMEType reports whether mime is accepted for image uploads.
func IsImageMIMEType(mime string) bool {
	return contains(ImageMIMETypes, mime)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
