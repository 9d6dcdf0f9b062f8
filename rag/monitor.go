package rag

import "time"

// Outcome classifies how a query was answered.
type Outcome string

const (
	// OutcomeAnswered is a generated answer grounded in retrieved chunks.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoDocuments is the fixed reply given when nothing was retrieved.
	OutcomeNoDocuments Outcome = "no_documents"
	// OutcomeDegraded is the apology given after a provider failure.
	OutcomeDegraded Outcome = "degraded"
)

// Monitor observes answered queries.
type Monitor interface {
	Answered(outcome Outcome, language string, elapsed time.Duration, sources int)
}

type noopMonitor struct{}

func (noopMonitor) Answered(Outcome, string, time.Duration, int) {}
