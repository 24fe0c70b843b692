package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erazemk/ponudbe/internal/db"
	"github.com/erazemk/ponudbe/internal/logging"
	"github.com/erazemk/ponudbe/internal/model"
	"github.com/erazemk/ponudbe/internal/store"
)

const baseDate = int64(1700000000000)

// tickingClock returns a clock that advances one millisecond per call.
func tickingClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return time.UnixMilli(baseDate + n.Add(1))
	}
}

func setupTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	database := db.NewTestDB(t)
	if opts.Clock == nil {
		opts.Clock = tickingClock()
	}
	server := httptest.NewServer(NewRouter(database, opts))
	t.Cleanup(server.Close)
	return server
}

func validOffer() map[string]any {
	return map[string]any{
		"title":    "Bright flat in the old town with a view",
		"type":     "flat",
		"price":    30000,
		"address":  "Mestni trg 1, Ljubljana",
		"rooms":    0,
		"checkin":  "14:00",
		"checkout": "10:00",
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url+"/api/offers", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /api/offers: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func listOffers(t *testing.T, url, query string) offerPage {
	t.Helper()
	resp, err := http.Get(url + "/api/offers" + query)
	if err != nil {
		t.Fatalf("GET /api/offers: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var page offerPage
	decodeBody(t, resp, &page)
	return page
}

func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

type formFile struct {
	field, filename, mime string
	data                  []byte
}

func multipartBody(t *testing.T, values [][2]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range values {
		mw.WriteField(kv[0], kv[1])
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.mime)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("creating part: %v", err)
		}
		part.Write(f.data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func validFormValues() [][2]string {
	return [][2]string{
		{"title", "Bright flat in the old town with a view"},
		{"type", "house"},
		{"price", "30000"},
		{"address", "Mestni trg 1, Ljubljana"},
		{"rooms", "2"},
		{"guests", "4"},
		{"checkin", "14:00"},
		{"checkout", "10:00"},
		{"features", "wifi"},
		{"features", "parking"},
		{"location[x]", "450"},
		{"location[y]", "320.5"},
		{"name", "Keks"},
	}
}

func TestCreateOfferJSON(t *testing.T) {
	server := setupTestServer(t, Options{})

	resp := postJSON(t, server.URL, validOffer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var raw map[string]any
	decodeBody(t, resp, &raw)

	features, ok := raw["features"].([]any)
	if !ok || len(features) != 0 {
		t.Errorf("expected features [], got %#v", raw["features"])
	}
	if _, ok := raw["_id"]; ok {
		t.Error("response must not carry an internal id")
	}

	for key, want := range validOffer() {
		got := raw[key]
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("%s: expected %v, got %v", key, want, got)
		}
	}

	name, _ := raw["name"].(string)
	inPool := false
	for _, n := range model.Names {
		inPool = inPool || n == name
	}
	if !inPool {
		t.Errorf("expected a pool name, got %q", name)
	}
}

func TestCreateOfferValidationErrors(t *testing.T) {
	server := setupTestServer(t, Options{})

	body := validOffer()
	body["title"] = "too short"
	body["price"] = 0
	body["features"] = []string{"wifi", "parking", "wifi"}
	delete(body, "address")

	resp := postJSON(t, server.URL, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errs []map[string]string
	decodeBody(t, resp, &errs)

	want := []string{"title", "price", "address", "features"}
	if len(errs) != len(want) {
		t.Fatalf("expected %d errors, got %v", len(want), errs)
	}
	for i, field := range want {
		if errs[i]["fieldName"] != field || errs[i]["errorMessage"] == "" {
			t.Errorf("error %d: expected %s with a message, got %v", i, field, errs[i])
		}
	}

	if page := listOffers(t, server.URL, ""); page.Total != 0 {
		t.Errorf("rejected offer must not be stored, got %d", page.Total)
	}
}

func TestCreateOfferEmptyBody(t *testing.T) {
	server := setupTestServer(t, Options{})

	resp := postJSON(t, server.URL, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errs []map[string]string
	decodeBody(t, resp, &errs)
	if len(errs) != 7 {
		t.Fatalf("expected 7 required errors, got %v", errs)
	}
	for _, e := range errs {
		if e["errorMessage"] != "is required" {
			t.Errorf("expected required error, got %v", e)
		}
	}
}

func TestCreateOfferInvalidBody(t *testing.T) {
	server := setupTestServer(t, Options{})

	for _, body := range []string{"{", "[1, 2]", "null", "", `{"title": "x"} garbage`, "{} {}", "{}]"} {
		resp, err := http.Post(server.URL+"/api/offers", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestCreateOfferMultipartWithImages(t *testing.T) {
	server := setupTestServer(t, Options{})

	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"avatar", "me.png", "image/png", createTestPNG(300, 300)},
		{"preview", "room.png", "image/png", createTestPNG(40, 30)},
		{"preview", "kitchen.png", "image/png", createTestPNG(30, 40)},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var o model.Offer
	decodeBody(t, resp, &o)

	if o.Name != "Keks" || o.Type != "house" || o.Price != 30000 || o.Rooms != 2 || o.Guests != 4 {
		t.Errorf("unexpected offer %+v", o)
	}
	if len(o.Features) != 2 || o.Features[0] != "wifi" || o.Features[1] != "parking" {
		t.Errorf("unexpected features %v", o.Features)
	}
	if o.Location != (model.Location{X: 450, Y: 320.5}) {
		t.Errorf("unexpected location %+v", o.Location)
	}
	if o.Avatar == nil || !strings.HasPrefix(o.Avatar.Name, "avatars/") || o.Avatar.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected avatar %+v", o.Avatar)
	}
	if len(o.Preview) != 2 {
		t.Fatalf("expected 2 previews, got %+v", o.Preview)
	}

	// The avatar is served back, downscaled.
	resp, err = http.Get(server.URL + "/api/images/" + o.Avatar.Name)
	if err != nil {
		t.Fatalf("GET image: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Fatalf("expected jpeg image, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding avatar: %v", err)
	}
	if img.Bounds().Dx() != 256 {
		t.Errorf("expected avatar downscaled to 256, got %d", img.Bounds().Dx())
	}

	// Conditional request.
	req, _ := http.NewRequest("GET", server.URL+"/api/images/"+o.Avatar.Name, nil)
	req.Header.Set("If-None-Match", resp.Header.Get("ETag"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestCreateOfferAvatarNotImage(t *testing.T) {
	server := setupTestServer(t, Options{})

	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"avatar", "notes.txt", "text/plain", []byte("hello")},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errs []map[string]string
	decodeBody(t, resp, &errs)
	if len(errs) != 1 || errs[0]["fieldName"] != "images" {
		t.Errorf("expected a single images error, got %v", errs)
	}

	if page := listOffers(t, server.URL, ""); page.Total != 0 {
		t.Errorf("rejected offer must not be stored, got %d", page.Total)
	}
}

func TestCreateOfferUndecodableImage(t *testing.T) {
	server := setupTestServer(t, Options{})

	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"preview", "fake.png", "image/png", []byte("definitely not a png")},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateOfferTwoAvatars(t *testing.T) {
	server := setupTestServer(t, Options{})

	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"avatar", "a.png", "image/png", createTestPNG(10, 10)},
		{"avatar", "b.png", "image/png", createTestPNG(10, 10)},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateOfferTooLarge(t *testing.T) {
	server := setupTestServer(t, Options{MaxUploadBytes: 1024})

	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"avatar", "big.png", "image/png", bytes.Repeat([]byte{1}, 4096)},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateOfferDuplicateDate(t *testing.T) {
	fixed := func() time.Time { return time.UnixMilli(baseDate) }
	server := setupTestServer(t, Options{Clock: fixed})

	resp := postJSON(t, server.URL, validOffer())
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL, validOffer())
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate date, got %d", resp.StatusCode)
	}
}

func TestGetOfferRoundTrip(t *testing.T) {
	server := setupTestServer(t, Options{})

	body := validOffer()
	body["features"] = []string{"elevator", "conditioner"}
	body["location"] = map[string]float64{"x": 1.5, "y": 2}
	resp := postJSON(t, server.URL, body)
	var created model.Offer
	decodeBody(t, resp, &created)

	resp, err := http.Get(fmt.Sprintf("%s/api/offers/%d", server.URL, created.Date))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got model.Offer
	decodeBody(t, resp, &got)

	a, _ := json.Marshal(created)
	b, _ := json.Marshal(got)
	if !bytes.Equal(a, b) {
		t.Errorf("round trip mismatch:\n created %s\n got     %s", a, b)
	}
}

func TestGetOfferNotFound(t *testing.T) {
	server := setupTestServer(t, Options{})

	resp, _ := http.Get(server.URL + "/api/offers/12345")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(server.URL + "/api/offers/yesterday")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric date, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListOffersPagination(t *testing.T) {
	server := setupTestServer(t, Options{PageSize: 3})

	var dates []int64
	for i := 0; i < 5; i++ {
		resp := postJSON(t, server.URL, validOffer())
		var o model.Offer
		decodeBody(t, resp, &o)
		dates = append(dates, o.Date)
	}
	// Newest first.
	desc := []int64{dates[4], dates[3], dates[2], dates[1], dates[0]}

	tests := []struct {
		query     string
		skip      int
		limit     int
		wantDates []int64
	}{
		{"", 0, 3, desc[0:3]},
		{"?skip=1&limit=2", 1, 2, desc[1:3]},
		{"?skip=3&limit=10", 3, 10, desc[3:5]},
		{"?skip=5", 5, 3, nil},
		{"?skip=9&limit=1", 9, 1, nil},
		{"?limit=0", 0, 0, nil},
	}

	for _, tt := range tests {
		page := listOffers(t, server.URL, tt.query)
		if page.Skip != tt.skip || page.Limit != tt.limit {
			t.Errorf("%q: expected skip %d limit %d, got %d %d", tt.query, tt.skip, tt.limit, page.Skip, page.Limit)
		}
		if page.Total != len(tt.wantDates) || len(page.Data) != len(tt.wantDates) {
			t.Errorf("%q: expected %d offers, got total %d data %d", tt.query, len(tt.wantDates), page.Total, len(page.Data))
			continue
		}
		for i, d := range tt.wantDates {
			if page.Data[i].Date != d {
				t.Errorf("%q: offer %d expected date %d, got %d", tt.query, i, d, page.Data[i].Date)
			}
		}
	}
}

func TestListOffersEmptyDataIsArray(t *testing.T) {
	server := setupTestServer(t, Options{})

	resp, _ := http.Get(server.URL + "/api/offers")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", data)
	}
}

func TestListOffersInvalidParams(t *testing.T) {
	server := setupTestServer(t, Options{})

	for _, q := range []string{"?skip=-1", "?limit=-5", "?skip=abc", "?limit=1.5"} {
		resp, _ := http.Get(server.URL + "/api/offers" + q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestImageNotFound(t *testing.T) {
	server := setupTestServer(t, Options{})

	for _, path := range []string{"/api/images/avatars/missing.jpg", "/api/images/banners/x.jpg"} {
		resp, _ := http.Get(server.URL + path)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestRequestIDHeader(t *testing.T) {
	server := setupTestServer(t, Options{})

	resp, _ := http.Get(server.URL + "/api/offers")
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	const id = "6f1c3c4e-2d7a-4d53-9a43-7a1f7f0e2b11"
	req, _ := http.NewRequest("GET", server.URL+"/api/offers", nil)
	req.Header.Set(RequestIDHeader, id)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) != id {
		t.Errorf("expected request id %s to be kept, got %s", id, resp.Header.Get(RequestIDHeader))
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>ponudbe</h1>"), 0644)
	server := setupTestServer(t, Options{StaticDir: dir})

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "ponudbe") {
		t.Errorf("expected index page, got %d %q", resp.StatusCode, data)
	}
}

func TestFormFields(t *testing.T) {
	fields := formFields(map[string][]string{
		"title":       {"Some title"},
		"features[]":  {"wifi"},
		"preview":     {},
		"location[x]": {"10"},
		"location[y]": {"20"},
		"tags":        {"a", "b"},
	})

	if fields["title"] != "Some title" {
		t.Errorf("unexpected title %#v", fields["title"])
	}
	if list, ok := fields["features"].([]any); !ok || len(list) != 1 || list[0] != "wifi" {
		t.Errorf("expected features list, got %#v", fields["features"])
	}
	if list, ok := fields["tags"].([]any); !ok || len(list) != 2 {
		t.Errorf("expected repeated key as list, got %#v", fields["tags"])
	}
	if _, ok := fields["preview"]; ok {
		t.Error("keys without values should be skipped")
	}
	loc, ok := fields["location"].(map[string]any)
	if !ok || loc["x"] != "10" || loc["y"] != "20" {
		t.Errorf("unexpected location %#v", fields["location"])
	}
}

func TestCreateOfferURLEncoded(t *testing.T) {
	server := setupTestServer(t, Options{})

	form := url.Values{}
	for _, kv := range validFormValues() {
		form.Add(kv[0], kv[1])
	}
	form.Del("features")
	form.Add("features[]", "washer")

	resp, err := http.PostForm(server.URL+"/api/offers", form)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var o model.Offer
	decodeBody(t, resp, &o)
	if len(o.Features) != 1 || o.Features[0] != "washer" {
		t.Errorf("expected [washer], got %v", o.Features)
	}
	if o.Avatar != nil || o.Preview != nil {
		t.Errorf("expected no images, got %+v %+v", o.Avatar, o.Preview)
	}
}

func TestCreateOfferRemovesSpilledUploads(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	server := setupTestServer(t, Options{})

	// Larger than the in-memory multipart limit, so it spills to disk.
	big := bytes.Repeat([]byte("x"), 2*multipartMemory)
	body, contentType := multipartBody(t, validFormValues(), []formFile{
		{"preview", "notes.txt", "text/plain", big},
	})
	resp, err := http.Post(server.URL+"/api/offers", contentType, body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected upload temp files to be removed, found %d", len(entries))
	}
}

func TestFormFieldsListOrderIsStable(t *testing.T) {
	values := map[string][]string{
		"features":   {"wifi", "parking"},
		"features[]": {"washer"},
		"title":      {"Some title"},
		"address":    {"Somewhere"},
	}

	for i := 0; i < 50; i++ {
		list, ok := formFields(values)["features"].([]any)
		if !ok || len(list) != 3 || list[0] != "wifi" || list[1] != "parking" || list[2] != "washer" {
			t.Fatalf("run %d: expected [wifi parking washer], got %#v", i, list)
		}
	}
}

type failingWriter struct {
	*httptest.ResponseRecorder
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestImageWriteErrorIsLogged(t *testing.T) {
	database := db.NewTestDB(t)
	router := NewRouter(database, Options{})

	img := &store.Image{Name: "avatars/a.jpg", Kind: "avatars", MIME: "image/jpeg", Checksum: "abc", Data: []byte("jpeg")}
	if err := store.SaveImage(context.Background(), database, img); err != nil {
		t.Fatalf("saving image: %v", err)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	req := httptest.NewRequest("GET", "/api/images/avatars/a.jpg", nil)
	req = req.WithContext(logging.WithLogger(req.Context(), logger))

	router.ServeHTTP(failingWriter{httptest.NewRecorder()}, req)

	if !strings.Contains(logs.String(), "failed to write image") {
		t.Errorf("expected write failure to be logged, got %q", logs.String())
	}
}
