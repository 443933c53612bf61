package services

import "github.com/wadjakorntonsri/go-link-guard/pkg/ports"

// NopMetrics drops every event.
type NopMetrics struct{}

func (NopMetrics) ChallengeIssued()          {}
func (NopMetrics) ProofVerified(string)      {}
func (NopMetrics) GateRejected(string)       {}
func (NopMetrics) SessionEvent(string)       {}
func (NopMetrics) ProviderCall(string, bool) {}

func metricsOrNop(m ports.Metrics) ports.Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
