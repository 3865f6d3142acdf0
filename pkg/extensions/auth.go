// Copyright (C) 2026 Efficient AI-based Development
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines pluggable provider interfaces for
// deployment-specific behavior. The defaults are no-ops suitable for
// local single-user operation; hosted deployments swap in real
// implementations without touching the orchestrator.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization
// fails.
//
// Wrap it so callers can classify failures:
//
//	return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes the authenticated caller. Chat ownership checks
// compare the caller's UserID against the chat's owner.
//
// # Fields
//
//   - UserID: Unique identifier for the authenticated user. The only
//     required field; must never be empty.
//   - Email: May be empty if the provider does not supply one.
//   - Roles: Role memberships for authorization decisions.
type AuthInfo struct {
	UserID string
	Email  string
	Roles  []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user
// identity.
//
// Implementations must be safe for concurrent use by multiple
// goroutines. The default NopAuthProvider always returns a valid
// "local-user", which lets a local deployment run with no identity
// infrastructure; hosted deployments validate tokens against a real
// identity provider.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's
	// identity.
	//
	// # Inputs
	//
	//   - ctx: Cancellation and deadline control.
	//   - token: Bearer token, possibly empty.
	//
	// # Outputs
	//
	//   - *AuthInfo: Identity of the caller. Non-nil on success.
	//   - error: ErrUnauthorized (or wrapped) if invalid, other errors
	//     for provider failures.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the default provider for local operation. Every
// request, token or not, authenticates as "local-user" with the admin
// role.
type NopAuthProvider struct{}

// Validate always succeeds with the local user.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

var _ AuthProvider = (*NopAuthProvider)(nil)
