// internal/handlers/api_server.go
package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/blufftrivia/internal/middleware"
	"github.com/jason-s-yu/blufftrivia/internal/session"
	"github.com/sirupsen/logrus"
)

// RouterConfig carries what the HTTP surface needs from the process.
type RouterConfig struct {
	Service        *session.Service
	Hub            *Hub
	Logger         *logrus.Logger
	AllowedOrigins []string
	JoinURL        func(code string) string
}

// NewRouter mounts the lobby API, the QR endpoint, the websocket and /healthz.
func NewRouter(cfg RouterConfig) http.Handler {
	lh := NewLobbyHandlers(cfg.Service, cfg.Logger, cfg.JoinURL)

	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/healthz"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/lobby", func(r chi.Router) {
		r.Post("/create", lh.Create)
		r.Post("/join", lh.Join)
		r.Post("/leave", lh.Leave)
		r.Post("/team", lh.Team)
		r.Post("/settings", lh.Settings)
		r.Post("/kick", lh.Kick)
		r.Post("/start", lh.Start)
		r.Post("/round/advance", lh.Advance)
		r.Post("/answer", lh.Answer)
		r.Post("/end", lh.End)
		r.Post("/return", lh.Return)
		r.Get("/{code}", lh.Get)
		r.Get("/{code}/qr.png", lh.QR)
	})

	r.Get("/ws", LobbyWSHandler(cfg.Logger, cfg.Service, cfg.Hub, originHosts(cfg.AllowedOrigins)))

	return r
}

// originHosts turns CORS origins into the host patterns the websocket
// upgrader matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
