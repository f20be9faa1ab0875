// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/go-social-publisher/internal/core/model"
	"github.com/jaycherian/go-social-publisher/internal/telemetry"
)

func main() {
	telemetry.SetupLogging()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := GetConfig()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	InitState()
	slog.Info("Initialized State")

	r := gin.Default()

	// Add OpenTelemetry middleware
	r.Use(otelgin.Middleware(config.Application.Name))

	// Permissive CORS keeps local frontends and schedulers working without
	// extra configuration.
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		PublishRouter(apiV1)
		TokenRouter(apiV1)
		JanitorRouter(apiV1)
	}

	srv := &http.Server{
		Addr:    config.Application.ListenAddress,
		Handler: r,
	}

	// Start the server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready", "address", config.Application.ListenAddress)

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	state.janitor.Stop()

	// The context informs the server it has 5 seconds to finish the
	// request it is currently handling.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed:", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry Shutdown Failed:", "error", err)
	}

	log.Println("Server exiting")
}

// textRequest is the body of a text post call.
type textRequest struct {
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
	Link        string `json:"link"`
}

// photoRequest is the body of a photo post call. The photo stays remote;
// only its URL is forwarded to the platform.
type photoRequest struct {
	PageID      string   `json:"page_id"`
	AccessToken string   `json:"access_token"`
	PhotoURL    string   `json:"photo_url"`
	Caption     string   `json:"caption"`
	Labels      []string `json:"labels"`
	Locale      string   `json:"locale"`
}

// exchangeRequest is the body of a long-lived token exchange call.
type exchangeRequest struct {
	AppID       string `json:"app_id"`
	AppSecret   string `json:"app_secret"`
	AccessToken string `json:"access_token"`
}

// PublishRouter sets up the routes for publishing videos, photos, and text
// posts to a Facebook Page.
func PublishRouter(r *gin.RouterGroup) {
	publish := r.Group("/publish")
	{
		publish.POST("/video", func(c *gin.Context) {
			var req model.UploadRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			outcome := state.publishService.PublishVideo(c.Request.Context(), &req)
			status := http.StatusOK
			if !outcome.Success {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, outcome)
		})

		publish.POST("/photo", func(c *gin.Context) {
			var req photoRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			outcome, err := state.publishService.PublishPhoto(c.Request.Context(),
				req.PageID, req.AccessToken, req.PhotoURL, req.Caption, req.Labels, req.Locale)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status := http.StatusOK
			if !outcome.Success {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, outcome)
		})

		publish.POST("/text", func(c *gin.Context) {
			var req textRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			outcome, err := state.publishService.PublishText(c.Request.Context(),
				req.PageID, req.AccessToken, req.Message, req.Link)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			status := http.StatusOK
			if !outcome.Success {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, outcome)
		})
	}
}

// TokenRouter sets up the routes for access-token maintenance: identity
// checks and short-to-long-lived exchanges.
func TokenRouter(r *gin.RouterGroup) {
	token := r.Group("/token")
	{
		token.GET("/validate", func(c *gin.Context) {
			accessToken := c.Query("access_token")
			if accessToken == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "access_token is required"})
				return
			}
			identity, err := state.graphClient.ValidateToken(c.Request.Context(), accessToken)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, identity)
		})

		token.POST("/exchange", func(c *gin.Context) {
			var req exchangeRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.AppID == "" || req.AppSecret == "" || req.AccessToken == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "app_id, app_secret, and access_token are required"})
				return
			}
			longLived, err := state.graphClient.ExchangeLongLivedToken(c.Request.Context(),
				req.AppID, req.AppSecret, req.AccessToken)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, longLived)
		})
	}
}

// JanitorRouter exposes the scratch-disk sweeper's most recent statistics.
func JanitorRouter(r *gin.RouterGroup) {
	janitor := r.Group("/janitor")
	{
		janitor.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, state.janitor.LastStats())
		})
	}
}
