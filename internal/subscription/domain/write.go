package domain

import (
	"fmt"
	"strings"
)

// WriteTier names one stage of the escalating write path.
type WriteTier string

const (
	WriteTierUpsert    WriteTier = "upsert"
	WriteTierProcedure WriteTier = "procedure"
	WriteTierInsert    WriteTier = "insert"
)

// WriteOutcome classifies the result of a single write attempt so the
// caller can decide whether to escalate to the next tier.
type WriteOutcome int

const (
	WriteOK WriteOutcome = iota
	WritePermissionDenied
	WriteFailed
)

// WriteResult is the outcome of one write tier.
type WriteResult struct {
	Outcome WriteOutcome
	Tier    WriteTier
	Err     error
}

func WriteSucceeded(tier WriteTier) WriteResult {
	return WriteResult{Outcome: WriteOK, Tier: tier}
}

func WriteDenied(tier WriteTier, err error) WriteResult {
	return WriteResult{Outcome: WritePermissionDenied, Tier: tier, Err: err}
}

func WriteErrored(tier WriteTier, err error) WriteResult {
	return WriteResult{Outcome: WriteFailed, Tier: tier, Err: err}
}

// WriteFallbackError aggregates the per-tier failures when every write tier
// has been exhausted.
type WriteFallbackError struct {
	UpsertErr    error
	ProcedureErr error
	InsertErr    error
}

func (e *WriteFallbackError) Error() string {
	parts := make([]string, 0, 3)
	if e.UpsertErr != nil {
		parts = append(parts, fmt.Sprintf("upsert: %v", e.UpsertErr))
	}
	if e.ProcedureErr != nil {
		parts = append(parts, fmt.Sprintf("procedure: %v", e.ProcedureErr))
	}
	if e.InsertErr != nil {
		parts = append(parts, fmt.Sprintf("insert: %v", e.InsertErr))
	}
	return "all write tiers failed: " + strings.Join(parts, "; ")
}

// Details returns the per-tier failure messages for operator diagnosis.
func (e *WriteFallbackError) Details() map[string]string {
	details := make(map[string]string, 3)
	if e.UpsertErr != nil {
		details["upsert"] = e.UpsertErr.Error()
	}
	if e.ProcedureErr != nil {
		details["procedure"] = e.ProcedureErr.Error()
	}
	if e.InsertErr != nil {
		details["insert"] = e.InsertErr.Error()
	}
	return details
}
