// Pixelbridge - Dual-Channel Conversion Tracking for Commerce Storefronts
// Copyright 2026 Pixelbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pixelbridge/pixelbridge

// Package authz answers "may this operator do that" for the operator-facing
// API (audit queries, order status lookups, administrative actions), using
// Casbin RBAC with two built-in roles: viewer and admin.
package authz

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	_ "embed"

	"github.com/pixelbridge/pixelbridge/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Operator roles.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// Enforcer wraps a Casbin enforcer over the embedded model and policy.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the enforcer from the embedded policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Enforcer{enforcer: enforcer}, nil
}

// Allow reports whether the role may perform the method on the path.
// Enforcement errors deny: an operator surface fails closed.
func (e *Enforcer) Allow(role, path, method string) bool {
	ok, err := e.enforcer.Enforce(role, path, method)
	if err != nil {
		logging.Error().Err(err).
			Str("role", role).
			Str("path", path).
			Msg("authorization check failed")
		return false
	}
	return ok
}

// ValidRole reports whether the role is one the policy knows.
func ValidRole(role string) bool {
	return role == RoleViewer || role == RoleAdmin
}

// loadPolicy parses the embedded CSV policy into the enforcer.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if _, err := enforcer.AddPolicy(toAny(parts[1:])...); err != nil {
				return fmt.Errorf("add policy %q: %w", line, err)
			}
		case "g":
			if _, err := enforcer.AddGroupingPolicy(toAny(parts[1:])...); err != nil {
				return fmt.Errorf("add grouping %q: %w", line, err)
			}
		default:
			return fmt.Errorf("unknown policy line %q", line)
		}
	}
	return nil
}

func toAny(parts []string) []interface{} {
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}
