// Package execution drives submitted orders to completion, escalating
// unfilled orders to a more aggressive order type after a deadline.
package execution

import (
	"fmt"
	"time"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// State is the execution phase state
type State string

const (
	StateWait     State = "WAIT"
	StateRevise   State = "REVISE"
	StateComplete State = "COMPLETE"
)

// DefaultCutoff bounds a phase when neither a wait duration nor a
// time-of-day deadline is configured
const DefaultCutoff = 24 * time.Hour

// TimeOfDay is a wall-clock deadline within the phase's trading day
type TimeOfDay struct {
	Hour   int
	Minute int
}

// WaitPolicy holds the deadline configuration for one execution phase
type WaitPolicy struct {
	// Duration is the elapsed-time deadline after submission, nil if unset
	Duration *time.Duration

	// Until is a same-day wall-clock deadline, nil if unset. It only
	// tightens the cutoff when it still lies in the future at submit time.
	Until    *TimeOfDay
	Location *time.Location
}

// Cutoff computes the escalation deadline for a phase submitted at the given
// time: the earliest of submit+Duration, today at Until, or submit+24h when
// neither is configured.
func (p WaitPolicy) Cutoff(submit time.Time) time.Time {
	cutoff := submit.Add(DefaultCutoff)

	if p.Duration != nil {
		cutoff = submit.Add(*p.Duration)
	}

	if p.Until != nil {
		loc := p.Location
		if loc == nil {
			loc = submit.Location()
		}
		local := submit.In(loc)
		until := time.Date(local.Year(), local.Month(), local.Day(), p.Until.Hour, p.Until.Minute, 0, 0, loc)
		if until.After(submit) && until.Before(cutoff) {
			cutoff = until
		}
	}

	return cutoff
}

// PhaseResult is the outcome of one execution phase
type PhaseResult struct {
	// Handles holds one handle per instrument ultimately traded: original
	// handles that completed plus any escalated replacements
	Handles []*domain.TradeHandle

	// Escalated holds the replacement handles submitted during REVISE
	Escalated []*domain.TradeHandle
}

// Coordinator runs the submit-wait-escalate-wait state machine for one list
// of order intents at a time. Sell and buy phases run sequentially and
// independently; the coordinator never interleaves them.
type Coordinator struct {
	gateway      domain.BrokerGateway
	pollInterval time.Duration
	log          zerolog.Logger

	// Injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewCoordinator creates a new execution coordinator
func NewCoordinator(gateway domain.BrokerGateway, pollInterval time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		gateway:      gateway,
		pollInterval: pollInterval,
		log:          log.With().Str("service", "execution").Logger(),
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// ExecutePhase submits every intent, waits for completion until the policy
// cutoff, escalates whatever is still unfilled to the auxiliary order type,
// and then waits without a deadline until every replacement terminates.
//
// Escalation happens at most once per phase. The second wait is deliberately
// unbounded: assuming the broker accepts the auxiliary order type, the phase
// always ends with every order in a terminal state rather than leaving
// positions stranded mid-rebalance.
func (c *Coordinator) ExecutePhase(phase string, intents []domain.OrderIntent, refs map[string]domain.InstrumentRef, auxType string, policy WaitPolicy) (*PhaseResult, error) {
	log := c.log.With().Str("phase", phase).Logger()

	if len(intents) == 0 {
		log.Info().Msg("No orders to execute")
		return &PhaseResult{}, nil
	}

	handles := make([]*domain.TradeHandle, 0, len(intents))
	for _, intent := range intents {
		ref, ok := refs[intent.Symbol]
		if !ok {
			return nil, fmt.Errorf("no resolved instrument for %s", intent.Symbol)
		}

		handle, err := c.gateway.SubmitOrder(ref, intent)
		if err != nil {
			return nil, fmt.Errorf("failed to submit %s order for %s: %w", intent.Side, intent.Symbol, err)
		}
		handles = append(handles, handle)
	}

	submitTime := c.now()
	cutoff := policy.Cutoff(submitTime)

	log.Info().
		Int("orders", len(handles)).
		Time("cutoff", cutoff).
		Msg("Orders submitted, waiting for fills")

	// Bounded wait: ends in COMPLETE or, at the cutoff, REVISE
	state := StateWait
	for state == StateWait {
		pending := c.pendingHandles(handles, log)

		if len(pending) == 0 {
			state = StateComplete
			break
		}
		if !c.now().Before(cutoff) {
			state = StateRevise
			break
		}

		c.sleep(c.pollInterval)
	}

	result := &PhaseResult{Handles: handles}

	if state == StateRevise {
		log.Warn().Msg("Cutoff reached with unfilled orders, escalating")

		replacements, err := c.escalate(handles, refs, auxType, log)
		if err != nil {
			return nil, err
		}
		result.Escalated = replacements

		// Swap escalated originals out of the final handle set
		final := make([]*domain.TradeHandle, 0, len(handles))
		for _, h := range handles {
			if !containsOrder(replacementSources(replacements), h.OrderID) {
				final = append(final, h)
			}
		}
		result.Handles = append(final, replacements...)

		// Unbounded wait: only the replacements are outstanding
		state = StateWait
		for state == StateWait {
			if len(c.pendingHandles(replacements, log)) == 0 {
				state = StateComplete
				break
			}
			c.sleep(c.pollInterval)
		}
	}

	log.Info().
		Int("orders", len(result.Handles)).
		Int("escalated", len(result.Escalated)).
		Msg("Phase complete")

	return result, nil
}

// pendingHandles refreshes order statuses and returns the handles that have
// not reached a terminal state. Poll failures are logged and the order is
// treated as still pending; the next tick retries.
func (c *Coordinator) pendingHandles(handles []*domain.TradeHandle, log zerolog.Logger) []*domain.TradeHandle {
	var pending []*domain.TradeHandle
	for _, handle := range handles {
		status, err := c.gateway.PollStatus(handle)
		if err != nil {
			log.Warn().Err(err).Str("order_id", handle.OrderID).Msg("Failed to poll order status")
			pending = append(pending, handle)
			continue
		}
		if !status.Done && status.Remaining > 0 {
			pending = append(pending, handle)
		}
	}
	return pending
}

// escalate cancels every non-terminal handle and resubmits its remaining
// quantity under the auxiliary order type
func (c *Coordinator) escalate(handles []*domain.TradeHandle, refs map[string]domain.InstrumentRef, auxType string, log zerolog.Logger) ([]*domain.TradeHandle, error) {
	var replacements []*domain.TradeHandle

	for _, handle := range handles {
		status, err := c.gateway.PollStatus(handle)
		if err != nil {
			return nil, fmt.Errorf("failed to poll order %s before escalation: %w", handle.OrderID, err)
		}
		if status.Done || status.Remaining <= 0 {
			continue
		}

		if err := c.gateway.CancelOrder(handle); err != nil {
			return nil, fmt.Errorf("failed to cancel order %s: %w", handle.OrderID, err)
		}

		intent := domain.OrderIntent{
			Symbol:    handle.Intent.Symbol,
			Side:      handle.Intent.Side,
			Quantity:  status.Remaining,
			OrderType: auxType,
		}

		log.Info().
			Str("symbol", intent.Symbol).
			Str("side", string(intent.Side)).
			Int("remaining", intent.Quantity).
			Str("order_type", auxType).
			Msg("Resubmitting unfilled order")

		ref, ok := refs[intent.Symbol]
		if !ok {
			ref = domain.InstrumentRef{Symbol: intent.Symbol}
		}
		replacement, err := c.gateway.SubmitOrder(ref, intent)
		if err != nil {
			return nil, fmt.Errorf("failed to resubmit order for %s: %w", intent.Symbol, err)
		}
		replacement.SourceOrderID = handle.OrderID

		replacements = append(replacements, replacement)
	}

	return replacements, nil
}

// replacementSources collects the order IDs the replacements superseded
func replacementSources(replacements []*domain.TradeHandle) []string {
	ids := make([]string, len(replacements))
	for i, r := range replacements {
		ids[i] = r.SourceOrderID
	}
	return ids
}

// containsOrder reports whether the ID list contains the given order ID
func containsOrder(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
