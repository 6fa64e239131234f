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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/workflow"
)

// NewRouter builds the HTTP API on top of the state.
func NewRouter(state *StateManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("scene-video-server"))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		VideoRouter(apiV1, state)
	}
	return r
}

// acceptedJob is the answer to an accepted render request.
type acceptedJob struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

func accepted(jobID string) acceptedJob {
	return acceptedJob{JobID: jobID, StatusURL: "/api/v1/videos/" + jobID + "/status"}
}

func submitFailed(c *gin.Context, err error) {
	if errors.Is(err, workflow.ErrJobActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}

// VideoRouter sets up the routes to submit renders, poll their status and
// download the results.
func VideoRouter(r *gin.RouterGroup, state *StateManager) {
	videos := r.Group("/videos")
	{
		videos.POST("", func(c *gin.Context) {
			req := &model.RenderRequest{}
			if err := c.ShouldBindJSON(req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := req.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.JobID == "" {
				req.JobID = model.NewJobID()
			}
			err := state.dispatcher.Submit(req.JobID, func(ctx context.Context) {
				if _, err := state.render.Render(ctx, req); err != nil {
					slog.ErrorContext(ctx, "render failed", "job", req.JobID, "error", err)
				}
			})
			if err != nil {
				submitFailed(c, err)
				return
			}
			c.JSON(http.StatusAccepted, accepted(req.JobID))
		})

		videos.POST("/from-content", func(c *gin.Context) {
			if state.content == nil {
				c.JSON(http.StatusNotImplemented, gin.H{"error": "content videos are not configured"})
				return
			}
			req := &model.ContentRequest{}
			if err := c.ShouldBindJSON(req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.URL == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
				return
			}
			if _, err := model.ParseFailurePolicy(string(req.FailurePolicy)); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.JobID == "" {
				req.JobID = model.NewJobID()
			} else if err := model.ValidateJobID(req.JobID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			err := state.dispatcher.Submit(req.JobID, func(ctx context.Context) {
				if _, err := state.content.Generate(ctx, req); err != nil {
					slog.ErrorContext(ctx, "content video failed", "job", req.JobID, "error", err)
				}
			})
			if err != nil {
				submitFailed(c, err)
				return
			}
			c.JSON(http.StatusAccepted, accepted(req.JobID))
		})

		videos.GET("/:id/status", func(c *gin.Context) {
			status, err := state.deps.Jobs.Get(c.Request.Context(), c.Param("id"))
			if errors.Is(err, services.ErrJobNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
				return
			}
			if err != nil {
				slog.ErrorContext(c.Request.Context(), "failed to read job status", "job", c.Param("id"), "error", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			c.JSON(http.StatusOK, status)
		})

		videos.GET("/files/:name", func(c *gin.Context) {
			name := c.Param("name")
			if err := services.ValidateName(name); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if state.videos.Uploaded() {
				signedURL, err := state.videos.GenerateSignedURL(c.Request.Context(), name)
				if err != nil {
					slog.ErrorContext(c.Request.Context(), "failed to sign video url", "name", name, "error", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate video URL"})
					return
				}
				c.Redirect(http.StatusFound, signedURL)
				return
			}
			path, err := state.videos.ResolveLocal(name)
			if errors.Is(err, services.ErrVideoNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "video not found"})
				return
			}
			if err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Header("Content-Type", commands.VideoContentType)
			c.Header("Cache-Control", commands.VideoCacheControl)
			c.File(path)
		})
	}
}
