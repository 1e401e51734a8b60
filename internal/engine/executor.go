package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/tablehook/internal/filter"
	"github.com/roach88/tablehook/internal/recipe"
	"github.com/roach88/tablehook/internal/record"
	"github.com/roach88/tablehook/internal/store"
	"github.com/roach88/tablehook/internal/webhook"
)

// Dispatcher performs an action's side effect and returns its decoded
// result. Implemented by webhook.Sender.
type Dispatcher interface {
	Dispatch(ctx context.Context, req webhook.Request) (any, error)
}

// Outputs holds the results of named actions for one cycle.
type Outputs map[string]any

// Outcome is what happened to one action.
type Outcome int

const (
	// OutcomeSkipped means the action's filters did not match.
	OutcomeSkipped Outcome = iota

	// OutcomeDelivered means the side effect succeeded.
	OutcomeDelivered
)

// Result describes one executed action.
type Result struct {
	Outcome    Outcome
	DeliveryID string
	Output     any
}

// Step is one action applied to one record within a cycle.
type Step struct {
	CycleID string
	Index   int
	Action  recipe.Action
	Record  record.Record
}

// Executor runs single actions for one recipe.
type Executor struct {
	recipe     string
	dispatcher Dispatcher
	ids        IDGenerator
	clock      Clock
	journal    Journal
	metrics    *Metrics
	logger     zerolog.Logger
}

// Run evaluates the action's filters, builds its payload, dispatches it and
// stores the result in outputs under the action's output name.
//
// A filter mismatch, and a filter that cannot be evaluated, both yield
// OutcomeSkipped with a nil error. A dispatch failure returns an
// *ExecutionError and leaves outputs untouched.
func (x *Executor) Run(ctx context.Context, step Step, outputs Outputs) (Result, error) {
	action := step.Action
	log := x.logger.With().
		Str("record", step.Record.ID).
		Str("action", action.Label(step.Index)).
		Logger()

	ok, err := filter.Matches(step.Record, action.Filters)
	if err != nil {
		log.Warn().Err(err).Msg("action filter could not be evaluated, skipping")
		x.metrics.actionDone(x.recipe, "skipped")
		return Result{Outcome: OutcomeSkipped}, nil
	}
	if !ok {
		log.Debug().Msg("action filters did not match, skipping")
		x.metrics.actionDone(x.recipe, "skipped")
		return Result{Outcome: OutcomeSkipped}, nil
	}

	switch action.Kind {
	case recipe.ActionSendWebhook:
		return x.sendWebhook(ctx, step, outputs, log)
	default:
		// Unreachable for validated recipes.
		return Result{}, x.executionError(step, errUnknownAction(action.Kind))
	}
}

func (x *Executor) sendWebhook(ctx context.Context, step Step, outputs Outputs, log zerolog.Logger) (Result, error) {
	action := step.Action
	payload := BuildPayload(action, step.Record, outputs)
	deliveryID := x.ids.Generate()

	out, err := x.dispatcher.Dispatch(ctx, webhook.Request{
		URL:        action.WebhookURL,
		Recipe:     x.recipe,
		DeliveryID: deliveryID,
		RecordID:   step.Record.ID,
		Payload:    payload,
	})

	delivery := store.Delivery{
		ID:          deliveryID,
		CycleID:     step.CycleID,
		Recipe:      x.recipe,
		RecordID:    step.Record.ID,
		ActionIndex: step.Index,
		URL:         action.WebhookURL,
		Status:      store.StatusDelivered,
		CreatedAt:   x.clock.Now(),
	}
	if digest, derr := webhook.Digest(payload); derr != nil {
		log.Warn().Err(derr).Msg("payload digest failed")
	} else {
		delivery.PayloadDigest = digest
	}

	if err != nil {
		delivery.Status = store.StatusFailed
		delivery.Error = err.Error()
		x.recordDelivery(ctx, delivery, log)
		x.metrics.actionDone(x.recipe, "failed")
		return Result{DeliveryID: deliveryID}, x.executionError(step, err)
	}

	x.recordDelivery(ctx, delivery, log)
	x.metrics.actionDone(x.recipe, "delivered")
	log.Info().
		Str("url", action.WebhookURL).
		Str("delivery", deliveryID).
		Msg("webhook sent")

	if action.OutputName != "" {
		outputs[action.OutputName] = out
	}
	return Result{Outcome: OutcomeDelivered, DeliveryID: deliveryID, Output: out}, nil
}

// BuildPayload assembles the body sent for an action. With input_from set,
// the payload holds exactly the named outputs, nil for any name not produced
// earlier in the cycle. Otherwise it is {"record": rec}.
func BuildPayload(action recipe.Action, rec record.Record, outputs Outputs) map[string]any {
	if len(action.InputFrom) == 0 {
		return map[string]any{"record": rec}
	}
	payload := make(map[string]any, len(action.InputFrom))
	for _, name := range action.InputFrom {
		payload[name] = outputs[name]
	}
	return payload
}

func (x *Executor) recordDelivery(ctx context.Context, d store.Delivery, log zerolog.Logger) {
	if x.journal == nil {
		return
	}
	if err := x.journal.RecordDelivery(ctx, d); err != nil {
		log.Warn().Err(err).Msg("journal delivery failed")
	}
}

func (x *Executor) executionError(step Step, err error) *ExecutionError {
	return &ExecutionError{
		Recipe:      x.recipe,
		RecordID:    step.Record.ID,
		ActionType:  step.Action.Kind,
		ActionIndex: step.Index,
		Err:         err,
	}
}
