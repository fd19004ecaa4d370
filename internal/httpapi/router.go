package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/adapters/storage/signedurl"
	"clipforge/internal/httpapi/handlers"
	"clipforge/internal/httpkit"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/middleware"
)

type Deps struct {
	Handlers    handlers.Deps
	CORSOrigins []string
	Log         *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()

	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- PUBLIC ----
	r.Get("/health", h.Health)
	r.Get(signedurl.ContentPath, wrap(h.StreamContent))

	// ---- OWNER SCOPED ----
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOwner)

		r.Post("/jobs", wrap(h.PostJob))
		r.Get("/jobs", wrap(h.ListJobs))
		r.Get("/jobs/{jobId}", wrap(h.GetJob))

		r.Post("/assets", wrap(h.PostAsset))
		r.Get("/assets/{assetId}", wrap(h.GetAsset))
		r.Get("/assets/{assetId}/url", wrap(h.GetAssetURL))
		r.Delete("/assets/{assetId}", wrap(h.DeleteAsset))

		r.Get("/credits", wrap(h.GetCredits))
		r.Get("/alerts", wrap(h.ListAlerts))
	})

	return r
}
