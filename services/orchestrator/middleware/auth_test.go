// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Efficient-AI-based-Development/Efficient-AI-based-Development-BE-sub000/pkg/extensions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// rejectingAuthProvider always fails validation.
type rejectingAuthProvider struct{}

func (p *rejectingAuthProvider) Validate(_ context.Context, _ string) (*extensions.AuthInfo, error) {
	return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_NopProviderAuthenticatesEveryRequest(t *testing.T) {
	router := gin.New()
	router.Use(AuthMiddleware(&extensions.NopAuthProvider{}))
	router.GET("/probe", func(c *gin.Context) {
		info := GetAuthInfo(c)
		require.NotNil(t, info)
		c.JSON(http.StatusOK, gin.H{"user": info.UserID})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local-user")
}

func TestAuthMiddleware_RejectingProviderReturns401(t *testing.T) {
	router := gin.New()
	router.Use(AuthMiddleware(&rejectingAuthProvider{}))
	router.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

// =============================================================================
// Token Extraction Tests
// =============================================================================

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"standard bearer", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer ABC123", "ABC123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
		{"padded token", "Bearer   spaced  ", "spaced"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request, _ = http.NewRequest("GET", "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.want, extractBearerToken(c))
		})
	}
}

// =============================================================================
// Context Helper Tests
// =============================================================================

func TestGetAuthInfo_ReturnsNilWhenUnset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetAuthInfo(c))
}

func TestSetAndGetAuthInfo_RoundTrip(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	info := &extensions.AuthInfo{UserID: "u-1", Roles: []string{"admin"}}

	SetAuthInfo(c, info)

	got := GetAuthInfo(c)
	require.NotNil(t, got)
	assert.Equal(t, "u-1", got.UserID)
	assert.True(t, got.HasRole("admin"))
	assert.False(t, got.HasRole("auditor"))
}
