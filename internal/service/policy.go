package service

import (
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
)

// Action is what the orchestrator does with a failed external call
type Action int

const (
	// ActionRetry re-enqueues the task with exponential backoff
	ActionRetry Action = iota

	// ActionDiscard stops the attempt and marks the credential unhealthy;
	// the user must reconnect
	ActionDiscard

	// ActionIgnore treats the failure as idempotent success
	ActionIgnore

	// ActionContinue logs the failure and moves on (best-effort paths)
	ActionContinue

	// ActionFail surfaces the error to the task queue's own retry machinery
	ActionFail
)

// CallSite distinguishes how strictly a failure is handled
type CallSite int

const (
	// SiteSync covers initial, full and targeted sync pushes (critical)
	SiteSync CallSite = iota

	// SiteDelete covers best-effort event removal
	SiteDelete

	// SiteEnqueue covers periodic reconciliation fan-out
	SiteEnqueue
)

// policyTable is the single authority for interpreting external failures.
// Every call into the calendar client goes through Classify before any
// credential or mapping state is mutated.
var policyTable = map[calendar.FailureKind]map[CallSite]Action{
	calendar.FailureQuota: {
		SiteSync:    ActionRetry,
		SiteDelete:  ActionRetry,
		SiteEnqueue: ActionContinue,
	},
	calendar.FailureAuth: {
		SiteSync:    ActionDiscard,
		SiteDelete:  ActionDiscard,
		SiteEnqueue: ActionContinue,
	},
	calendar.FailureNotFound: {
		SiteSync:    ActionIgnore,
		SiteDelete:  ActionIgnore,
		SiteEnqueue: ActionIgnore,
	},
	calendar.FailureOther: {
		SiteSync:    ActionFail,
		SiteDelete:  ActionContinue,
		SiteEnqueue: ActionContinue,
	},
}

// Policy holds the retry/backoff parameters applied on top of the table
type Policy struct {
	backoffBase       time.Duration
	syncMaxAttempts   int
	deleteMaxAttempts int
}

// NewPolicy creates an error classification policy
func NewPolicy(backoffBase time.Duration, syncMaxAttempts, deleteMaxAttempts int) *Policy {
	return &Policy{
		backoffBase:       backoffBase,
		syncMaxAttempts:   syncMaxAttempts,
		deleteMaxAttempts: deleteMaxAttempts,
	}
}

// Classify maps a failure to the action the orchestrator must take
func (p *Policy) Classify(err error, site CallSite) Action {
	return policyTable[calendar.KindOf(err)][site]
}

// Backoff returns the delay before retry number attempt+1. The delay doubles
// with every attempt: base, 2*base, 4*base, ...
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.backoffBase << uint(attempt)
}

// MaxAttempts returns the retry budget for a call site
func (p *Policy) MaxAttempts(site CallSite) int {
	if site == SiteDelete {
		return p.deleteMaxAttempts
	}
	return p.syncMaxAttempts
}
