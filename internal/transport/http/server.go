package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gopherai-assistant/internal/bootstrap"
	"gopherai-assistant/internal/pkg/pdfextract"
	"gopherai-assistant/internal/transport/http/handler"
	"gopherai-assistant/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger.Named("http")), middleware.Recovery(app.Logger))
	router.MaxMultipartMemory = app.Config.MaxUploadBytes()

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, dependencyChecks(app))
	router.StaticFile("/", "web/index.html")
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sessionHandler := handler.NewSessionHandler(app.Sessions)
	assistantHandler := handler.NewAssistantHandler(app.Assistants, app.Store, pdfextract.Options{
		MaxBytes: app.Config.MaxUploadBytes(),
		MaxChars: app.Config.App.MaxPDFChars,
	}, app.Config.Storage.HistoryLimit)

	v1 := router.Group("/api/v1")
	v1.POST("/session", sessionHandler.Begin)

	assistantGroup := v1.Group("/assistant")
	assistantGroup.Use(middleware.AuthSession(app.Sessions))
	assistantGroup.GET("/modes", assistantHandler.Modes)
	assistantGroup.GET("/state", assistantHandler.State)
	assistantGroup.POST("/mode", assistantHandler.SelectMode)
	assistantGroup.POST("/submit", assistantHandler.Submit)
	assistantGroup.POST("/summarize/pdf", assistantHandler.SummarizePDF)
	assistantGroup.POST("/feedback", assistantHandler.Feedback)
	assistantGroup.GET("/history", assistantHandler.History)
	assistantGroup.GET("/history/stream", assistantHandler.HistoryStream)

	return router
}

func dependencyChecks(app *bootstrap.App) map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"storage": app.Repo.Ping,
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
