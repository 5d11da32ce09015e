package server

import (
	"net/http"

	"skillconnect/internal/ai"
	"skillconnect/internal/auth"
	"skillconnect/internal/config"
	"skillconnect/internal/metrics"
	"skillconnect/internal/mw"
	"skillconnect/internal/service"
	"skillconnect/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。limiter 为 nil 时不限速。
func SetupRouter(cfg config.Config, db *gorm.DB, gw *ws.Gateway, aiSvc *ai.Service, limiter *mw.RL) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/chat", ws.Serve(gw, cfg))

	h := NewHandler(
		service.NewUserService(db, cfg),
		service.NewSkillService(db, aiSvc),
		service.NewMessageService(db),
	)

	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.Middleware(auth.NewIssuer(cfg), db))

	authed.GET("/users/:userId", h.GetUser)
	authed.POST("/users/update-skills", h.UpdateSkills)
	authed.PUT("/users/update-credits/:userId", h.SetCredits)
	authed.POST("/users/find-users", h.FindUsers)

	authed.POST("/skills/detect", h.DetectSkills)
	authed.POST("/skills/match", h.MatchSkills)
	authed.PUT("/skills/update-credits/:id", h.AddCredits)
	authed.POST("/skills/generate", h.GenerateQuiz)
	authed.POST("/skills/validate-answers", h.ValidateAnswers)

	authed.GET("/messages/conversations/:userId", h.Conversations)
	authed.GET("/messages/:senderId/:receiverId", h.History)
	authed.POST("/messages", h.SaveMessage)

	return r
}
