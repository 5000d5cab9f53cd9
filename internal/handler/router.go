package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/config"
	"github.com/zhouzirui/z-lingo/backend/internal/handler/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/handler/chat"
	"github.com/zhouzirui/z-lingo/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-lingo/backend/internal/middleware"
	catalogModel "github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
	"github.com/zhouzirui/z-lingo/backend/internal/relay"
	chatService "github.com/zhouzirui/z-lingo/backend/internal/service/chat"
	"github.com/zhouzirui/z-lingo/backend/pkg/utils"
)

// Dependencies groups what the router wires into handlers. Completer may be nil
// when no model provider is configured.
type Dependencies struct {
	Catalog    catalogModel.Store
	Chat       *chatService.Service
	Completer  stream.Completer
	Relay      *relay.Relay
	Auth       *middlewarePkg.Authenticator
	ChatConfig config.ChatConfig
	Logger     zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	gate := middlewarePkg.NewFeatureGate(deps.ChatConfig)

	r.Route("/api", func(api chi.Router) {
		catalog.New(deps.Catalog, deps.Logger).RegisterRoutes(api)

		api.Group(func(authed chi.Router) {
			authed.Use(deps.Auth.Middleware)

			chat.New(deps.Chat, deps.Logger).RegisterRoutes(authed)

			authed.Group(func(ai chi.Router) {
				ai.Use(gate.Middleware)

				if deps.Completer == nil {
					unavailable := func(w http.ResponseWriter, r *http.Request) {
						utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
					}
					ai.Post("/chat/stream", unavailable)
					ai.Get("/chat/ws", unavailable)
					return
				}

				stream.New(deps.Completer, deps.Relay, deps.ChatConfig, deps.Logger).RegisterRoutes(ai)
			})
		})
	})

	return r
}
