// Package update checks a release manifest for a newer version.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Manifest is the published description of the latest release.
type Manifest struct {
	Version string `json:"version"`
	Notes   string `json:"notes,omitempty"`
	PubDate string `json:"pub_date,omitempty"`
}

// Result is the outcome of a check.
type Result struct {
	HasUpdate bool   `json:"has_update"`
	Version   string `json:"version,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Checker compares the running version against a manifest URL.
type Checker struct {
	url     string
	current string
	client  *http.Client
	logger  *slog.Logger
}

// NewChecker creates a checker for the running version current.
func NewChecker(manifestURL, current string, client *http.Client, logger *slog.Logger) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{url: manifestURL, current: current, client: client, logger: logger.With("component", "update")}
}

// Check fetches the manifest. A newer, valid semantic version reports an
// update; an unparsable manifest version never does.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("update check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("update check: %s returned %s", c.url, resp.Status)
	}

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&m); err != nil {
		return Result{}, fmt.Errorf("update check: decode manifest: %w", err)
	}

	latest := canonical(m.Version)
	if latest == "" {
		c.logger.Warn("manifest version is not semver", "version", m.Version)
		return Result{}, nil
	}
	cur := canonical(c.current)
	if cur != "" && semver.Compare(latest, cur) <= 0 {
		return Result{}, nil
	}
	c.logger.Info("update available", "current", c.current, "latest", m.Version)
	return Result{HasUpdate: true, Version: strings.TrimPrefix(latest, "v"), Notes: m.Notes}, nil
}

// canonical returns v as a canonical semver string with a leading "v", or
// "" if it is not valid.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}
