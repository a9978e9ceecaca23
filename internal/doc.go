// Package internal documents the EventSphere server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - auth: token service and role-based authorization
// - governor: the admission pipeline and fixed-window rate limiter
// - domain: business logic and domain models
// - storage: database access and repositories (pgx + Postgres)
// - jobs: scheduled maintenance workers on river
// - audit, config, metrics, sanitize, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
