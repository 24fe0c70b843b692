package validate

import (
	"strings"

	"github.com/erazemk/ponudbe/internal/model"
)

// Images checks the declared MIME type of the avatar and every preview.
// Any number of violations yields a single "images" error. Missing
// attachments are valid.
func Images(avatar *model.Upload, preview []model.Upload) *Error {
	ok := avatar == nil || model.IsImageMIMEType(avatar.MIMEType)
	for _, p := range preview {
		ok = ok && model.IsImageMIMEType(p.MIMEType)
	}
	if !ok {
		return ImagesError()
	}
	return nil
}

// ImagesError is the shared error for rejected avatar and preview uploads.
func ImagesError() *Error {
	return &Error{
		Field:   "images",
		Message: "must be images of type " + strings.Join(model.ImageMIMETypes, ", "),
		Kind:    KindImages,
	}
}
