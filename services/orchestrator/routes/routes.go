// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the orchestrator's HTTP surface onto a Gin
// engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/pkg/extensions"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/handlers"
	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/services/orchestrator/middleware"
)

// SetupRoutes registers all orchestrator routes.
//
// # Description
//
// Health and metrics are unauthenticated. Everything under /v1 passes
// through the auth middleware; with the default NopAuthProvider that
// means a single "local-user" identity.
//
// # Inputs
//
//   - router: Gin engine to register on. Must not be nil.
//   - chat: Chat handler serving the session endpoints. Must not be nil.
//   - authProvider: Token validator for /v1 routes. Must not be nil.
func SetupRoutes(router *gin.Engine, chat handlers.ChatHandler, authProvider extensions.AuthProvider) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		chats := v1.Group("/chats")
		{
			chats.POST("", chat.HandleCreateChat)
			chats.POST("/:id/messages", chat.HandleSendMessage)
			chats.GET("/:id/messages", chat.HandleListMessages)
			chats.GET("/:id/stream", chat.HandleChatStream)
			chats.POST("/:id/cancel", chat.HandleCancelChat)
		}
	}
}
