package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("api",
		fx.Provide(
			NewHandler,
			NewEngine,
		),
	)
}

// NewEngine builds the gin engine serving the HTTP intake.
func NewEngine(cfg *config.Config, h *Handler) *gin.Engine {
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}
