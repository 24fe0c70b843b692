package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/offer"
)

// multipartMemory is how much of a multipart body is kept in memory; the
// rest of the uploaded files spill to temporary files.
const multipartMemory = 1 << 20

// decodeOffer reads a JSON, multipart or urlencoded submission into the
// pipeline's single input shape. The returned cleanup removes temporary
// upload files and must be called on every path.
func decodeOffer(r *http.Request) (offer.Raw, func(), error) {
	cleanup := func() {}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "multipart/form-data":
		err := r.ParseMultipartForm(multipartMemory)
		if r.MultipartForm != nil {
			form := r.MultipartForm
			cleanup = func() { form.RemoveAll() }
		}
		if err != nil {
			return offer.Raw{}, cleanup, fmt.Errorf("parsing multipart form: %w", err)
		}
		raw := offer.Raw{Fields: formFields(r.MultipartForm.Value)}

		avatars := filesFor(r.MultipartForm, "avatar")
		if len(avatars) > 1 {
			return offer.Raw{}, cleanup, errors.New("only one avatar may be uploaded")
		}
		if len(avatars) == 1 {
			raw.Avatar = &avatars[0]
		}
		raw.Preview = filesFor(r.MultipartForm, "preview")
		return raw, cleanup, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return offer.Raw{}, cleanup, fmt.Errorf("parsing form: %w", err)
		}
		return offer.Raw{Fields: formFields(r.PostForm)}, cleanup, nil

	default:
		defer r.Body.Close()
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var fields map[string]any
		if err := dec.Decode(&fields); err != nil {
			return offer.Raw{}, cleanup, fmt.Errorf("decoding JSON body: %w", err)
		}
		if fields == nil {
			return offer.Raw{}, cleanup, errors.New("JSON body must be an object")
		}
		switch _, err := dec.Token(); {
		case err == io.EOF:
		case err != nil:
			return offer.Raw{}, cleanup, fmt.Errorf("reading past JSON object: %w", err)
		default:
			return offer.Raw{}, cleanup, errors.New("unexpected data after JSON object")
		}
		return offer.Raw{Fields: fields}, cleanup, nil
	}
}

// formFields maps form values onto raw fields. Repeated keys and keys with a
// "[]" suffix become lists; "location[x]" and "location[y]" build location.
// Keys are visited in sorted order, so "features" precedes "features[]".
func formFields(values map[string][]string) map[string]any {
	fields := make(map[string]any, len(values))
	location := map[string]any{}

	for _, key := range slices.Sorted(maps.Keys(values)) {
		vals := values[key]
		if len(vals) == 0 {
			continue
		}
		switch {
		case key == "location[x]":
			location["x"] = vals[0]
		case key == "location[y]":
			location["y"] = vals[0]
		case strings.HasSuffix(key, "[]"):
			key = strings.TrimSuffix(key, "[]")
			fields[key] = appendList(fields[key], vals)
		case len(vals) > 1:
			fields[key] = appendList(fields[key], vals)
		default:
			if existing, ok := fields[key]; ok {
				fields[key] = appendList(existing, vals)
			} else {
				fields[key] = vals[0]
			}
		}
	}

	if len(location) > 0 {
		fields["location"] = location
	}
	return fields
}

func appendList(existing any, vals []string) []any {
	var list []any
	switch t := existing.(type) {
	case []any:
		list = t
	case string:
		list = []any{t}
	}
	for _, v := range vals {
		list = append(list, v)
	}
	return list
}

// filesFor returns the uploads sent under name or name[].
func filesFor(form *multipart.Form, name string) []model.Upload {
	var uploads []model.Upload
	for _, key := range []string{name, name + "[]"} {
		for _, fh := range form.File[key] {
			uploads = append(uploads, model.Upload{
				Filename: fh.Filename,
				MIMEType: fh.Header.Get("Content-Type"),
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return uploads
}
