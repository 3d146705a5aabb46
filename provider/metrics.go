// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus metrics of every Provider they're given to.
// Create them once per registry.
type Metrics struct {
	Acquisitions *prometheus.CounterVec
	Transitions  *prometheus.CounterVec
	DeniedScopes prometheus.Counter
}

// Acquisition paths
const (
	pathSilent   = "silent"
	pathRedirect = "redirect"
	pathPopup    = "popup"
)

// Acquisition results
const (
	resultToken               = "token"
	resultInteractionRequired = "interaction_required"
	resultDenied              = "denied"
	resultPending             = "pending"
	resultError               = "error"
	resultFatal               = "fatal"
)

// NewMetrics creates the Metrics and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mgtauth_token_acquisitions_total",
			Help: "Total number of access token acquisitions by path and result",
		}, []string{"path", "result"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mgtauth_signin_state_transitions_total",
			Help: "Total number of sign-in state transitions by the state entered",
		}, []string{"state"}),
		DeniedScopes: factory.NewCounter(prometheus.CounterOpts{
			Name: "mgtauth_denied_scopes_recorded_total",
			Help: "Total number of scopes recorded as denied by the user",
		}),
	}
}

func (m *Metrics) acquisition(path, result string) {
	if m == nil {
		return
	}
	m.Acquisitions.WithLabelValues(path, result).Inc()
}

func (m *Metrics) transition(s SignInState) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) denied(n int) {
	if m == nil {
		return
	}
	m.DeniedScopes.Add(float64(n))
}
