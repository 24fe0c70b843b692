package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/erazemk/ponudbe/internal/imaging"
	"github.com/erazemk/ponudbe/internal/offer"
	"github.com/erazemk/ponudbe/internal/store"
)

// Options configures the router.
type Options struct {
	PageSize       int
	MaxUploadBytes int64
	CORSOrigins    []string
	// StaticDir, if set, is served at the root.
	StaticDir string
	// Clock, if set, replaces time.Now when dating new offers.
	Clock func() time.Time
}

// DefaultPageSize is the page size used when Options.PageSize is zero.
const DefaultPageSize = 20

// DefaultMaxUploadBytes is the request size limit used when Options.MaxUploadBytes is zero.
const DefaultMaxUploadBytes = 10 << 20

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, opts Options) http.Handler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	offersHandler := &OffersHandler{
		DB: db,
		Pipeline: &offer.Pipeline{
			Offers:   store.OfferStore{DB: db},
			Avatars:  &imaging.Store{DB: db, Kind: imaging.Avatars},
			Previews: &imaging.Store{DB: db, Kind: imaging.Previews},
			Now:      opts.Clock,
		},
		PageSize:       opts.PageSize,
		MaxUploadBytes: opts.MaxUploadBytes,
	}
	imagesHandler := &ImagesHandler{DB: db}

	r := chi.NewRouter()
	r.Use(LoggingMiddleware, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/offers", offersHandler.List)
		r.Post("/offers", offersHandler.Create)
		r.Get("/offers/{date}", offersHandler.Get)
		r.Get("/images/{kind}/{file}", imagesHandler.Get)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}
