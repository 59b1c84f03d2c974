package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/auth"
	"github.com/alecgard/liftline/internal/complaint"
	"github.com/alecgard/liftline/internal/metrics"
	"github.com/alecgard/liftline/internal/ratelimit"
	"github.com/alecgard/liftline/internal/sales"
	"github.com/alecgard/liftline/internal/site"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Sites          *site.Service
	Complaints     *complaint.Service
	Flows          *complaint.Flows
	Sales          *sales.Service
	Accounts       *account.Store
	Sessions       *account.Sessions
	LoginLimiter   *ratelimit.Limiter
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// Ping checks the backing store for /health. Nil reports the store as
	// not checked.
	Ping func(ctx context.Context) error
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger)
	r.Use(secureHeaders)
	r.Use(rejectEncodedSlash)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           86400,
		}))
	}

	var obs auth.Observer
	if deps.Metrics != nil {
		obs = deps.Metrics
	}

	authH := newAuthHandler(deps.Accounts, deps.Sessions, obs)
	sitesH := newSitesHandler(deps.Sites, originChecker(deps.AllowedOrigins))
	complaintsH := newComplaintsHandler(deps.Complaints, deps.Flows)
	salesH := newSalesHandler(deps.Sales)

	r.Get("/health", healthHandler(deps.Ping))
	r.Get("/.well-known/liftline.json", WellKnownHandler)

	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
		r.Handle("/metrics/prometheus", deps.Metrics.PrometheusHandler())
	}

	// Login is the only unauthenticated API route.
	login := http.Handler(http.HandlerFunc(authH.Login))
	if deps.LoginLimiter != nil {
		onReject := func() {}
		if deps.Metrics != nil {
			onReject = func() { deps.Metrics.IncRateLimitRejection("login") }
		}
		login = ratelimit.Middleware(deps.LoginLimiter, clientIP, onReject)(login)
	}
	r.Method(http.MethodPost, "/api/v1/auth/login", login)

	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.SessionMiddleware(deps.Sessions, obs))

		ar.Post("/auth/logout", authH.Logout)
		ar.Get("/auth/me", authH.Me)
		ar.Put("/me/push-token", authH.RegisterPushToken)

		ar.Route("/sites", func(sr chi.Router) {
			sr.Get("/", sitesH.ListSites)
			sr.Route("/{siteID}", func(sr chi.Router) {
				sr.Get("/", sitesH.GetSite)
				sr.Post("/resolve", sitesH.ResolveSite)
				sr.Get("/tasks/today", sitesH.TodaysTasks)
				sr.Put("/tasks/{task}", sitesH.ScheduleTask)
				sr.Put("/quality-checks/{check}", sitesH.SetQualityCheck)
				sr.Put("/checklists/{section}", sitesH.UpdateChecklist)
				sr.Put("/materials/{index}", sitesH.AdvanceMaterial)
				sr.Get("/chats", sitesH.ListChats)
				sr.Post("/chats", sitesH.SendChat)
				sr.Get("/chats/stream", sitesH.StreamChats)
			})
		})

		ar.Route("/complaints", func(cr chi.Router) {
			cr.Get("/", complaintsH.ListComplaints)
			cr.Route("/{id}", func(cr chi.Router) {
				cr.Get("/", complaintsH.GetComplaint)
				cr.Post("/resolve", complaintsH.ResolveComplaint)
				cr.Post("/messages", complaintsH.AddMessage)
				cr.Post("/accept", complaintsH.Accept)
				cr.Post("/completion/code", complaintsH.SubmitCode)
				cr.Post("/completion/notes", complaintsH.SubmitNotes)
				cr.Delete("/completion", complaintsH.CancelCompletion)
			})
		})

		ar.Get("/sales", salesH.ListLeads)
		ar.Post("/sales", salesH.CreateLead)
	})

	return r
}

// healthHandler reports liveness and, when ping is set, store reachability.
func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "connected"})
	}
}

// originChecker builds the WebSocket origin check from the CORS allow list.
// With no list only same-host origins are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
