// Package service defines the mountable HTTP service contract and the
// registry the server builds its services from.
package service

import (
	"log/slog"
	"net/http"
)

// Service is an HTTP surface mounted under its Prefix.
type Service interface {
	Handler() http.Handler
	// Prefix is the mount point relative to the server root, without
	// leading or trailing slashes.
	Prefix() string
	Close() error
	// Unprotected lists paths, relative to the prefix, that skip the auth gate.
	// A trailing "/" marks a subtree.
	Unprotected() []string
}

// NewService builds a service from its [http.services.<name>] table.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
