package core

import "context"

// ChainOutcome is the decision a middleware stage hands back to the chain
type ChainOutcome int

const (
	// OutcomeContinue lets the chain proceed to the next stage
	OutcomeContinue ChainOutcome = iota
	// OutcomeHaltResponse stops the chain; the stage's response is final
	OutcomeHaltResponse
	// OutcomeHaltFailure stops the chain with a generic processing failure
	OutcomeHaltFailure
)

// ChainResult is the sum type returned by every middleware stage:
// continue, halt with a concrete response, or halt with a failure.
type ChainResult struct {
	outcome  ChainOutcome
	response *Envelope
}

// Continue signals the chain to proceed
func Continue() ChainResult {
	return ChainResult{outcome: OutcomeContinue}
}

// HaltWithResponse stops the chain and makes resp the final response
func HaltWithResponse(resp *Envelope) ChainResult {
	return ChainResult{outcome: OutcomeHaltResponse, response: resp}
}

// HaltWithFailure stops the chain with a generic middleware failure
func HaltWithFailure() ChainResult {
	return ChainResult{outcome: OutcomeHaltFailure}
}

// Outcome returns the stage decision
func (r ChainResult) Outcome() ChainOutcome { return r.outcome }

// Continues reports whether the chain should proceed
func (r ChainResult) Continues() bool { return r.outcome == OutcomeContinue }

// Response returns the halt response, nil unless OutcomeHaltResponse
func (r ChainResult) Response() *Envelope { return r.response }

// Middleware is a single stage of the gateway pipeline. Handle mutates
// the gateway context in place and fully owns it until it returns; the
// chain never runs two stages concurrently for one request.
type Middleware interface {
	Name() string
	Handle(ctx context.Context, gc *GatewayContext) ChainResult
}
