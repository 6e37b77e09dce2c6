// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify delivers session progress updates to the caller's
// webhook. Delivery is best effort: a failed POST is logged and counted
// but never surfaces as an error, so a dead gateway cannot stall or
// fail an agent session.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Webhook delivery attempts by outcome.",
	},
	[]string{"outcome"},
)

// Update is the wire payload for one progress message. Field names match
// the gateway contract.
type Update struct {
	SessionID      string `json:"sessionId"`
	PartialMessage string `json:"partialMessage"`
	Status         string `json:"status"`
	IsComplete     bool   `json:"isComplete"`
}

// Notifier posts session updates to a fixed callback URL.
//
// Description:
//
//	One Notifier serves one session. The HTTP client is shared and
//	reused across updates; Close releases its idle connections when the
//	session ends.
//
// Thread Safety: Safe for concurrent use.
type Notifier struct {
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewNotifier creates a Notifier for one session's callback URL.
//
// Inputs:
//   - callbackURL: Where updates are POSTed. Empty disables delivery.
//   - timeout: Per-request timeout. Non-positive falls back to 10s.
//   - logger: May be nil.
func NewNotifier(callbackURL string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Send posts one update.
//
// Outputs:
//   - bool: true when the webhook acknowledged with a 2xx status. All
//     failures (no callback URL, marshal, transport, non-2xx) return
//     false; none return an error.
func (n *Notifier) Send(ctx context.Context, update Update) bool {
	if n == nil || n.callbackURL == "" {
		deliveriesTotal.WithLabelValues("skipped").Inc()
		return false
	}

	body, err := json.Marshal(update)
	if err != nil {
		n.logger.Warn("notify: marshal failed", slog.String("error", err.Error()))
		deliveriesTotal.WithLabelValues("error").Inc()
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.callbackURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("notify: building request failed", slog.String("error", err.Error()))
		deliveriesTotal.WithLabelValues("error").Inc()
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("notify: delivery failed",
			slog.String("session_id", update.SessionID),
			slog.String("error", err.Error()),
		)
		deliveriesTotal.WithLabelValues("error").Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("notify: webhook rejected update",
			slog.String("session_id", update.SessionID),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)),
		)
		deliveriesTotal.WithLabelValues("rejected").Inc()
		return false
	}

	deliveriesTotal.WithLabelValues("ok").Inc()
	return true
}

// Close releases the notifier's idle connections.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.httpClient.CloseIdleConnections()
}
