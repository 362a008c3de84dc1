package http

import (
	"context"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/adapters/signal"
	"github.com/stagioo/Call-sub001/internal/app/orch"
	"github.com/stagioo/Call-sub001/internal/config"
	"github.com/stagioo/Call-sub001/internal/domain"
)

const (
	sessionName = "CallSessions"
	guestKey    = "guest_token"
)

// IdentityMiddleware resolves the caller. An upstream header wins; otherwise
// a guest token is kept in the cookie session.
func IdentityMiddleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(header)); uid != "" && len(uid) <= domain.MaxUserIDLen {
			c.Set(signal.CtxUserID, uid)
			c.Next()
			return
		}
		sess := sessions.Default(c)
		token, _ := sess.Get(guestKey).(string)
		if token == "" {
			token = domain.NewGuestToken()
			sess.Set(guestKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save guest session")
			}
		}
		c.Set(signal.CtxUserID, token)
		c.Set(signal.CtxGuest, true)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(IdentityMiddleware(cfg.IdentityHeader))

	h := &callHandlers{orch: o, pollInterval: cfg.Access.PollInterval}
	r.GET("/healthz", h.health)

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	for _, calls := range []*gin.RouterGroup{r.Group("/calls"), api.Group("/calls")} {
		calls.POST("", h.createCall)
		calls.GET("/:id/check-access", h.checkAccess)
		calls.GET("/:id/creator", h.creator)
		calls.POST("/:id/request-join", h.requestJoin)
		calls.POST("/:id/approve-join", h.decide(domain.DecisionApprove))
		calls.POST("/:id/reject-join", h.decide(domain.DecisionReject))
		calls.GET("/:id/requests", h.pending)
		calls.GET("/:id/participants", h.participants)
	}

	api.GET("/rooms", h.listRooms)
	api.DELETE("/rooms/:id", h.evictRoom)

	ctrl := signal.NewSignalWSController(o, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws/signal", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
