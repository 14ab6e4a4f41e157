package moderation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bookstage/chatguard/internal/metrics"
)

// SuspensionMessage is shown to senders whose account is suspended.
const SuspensionMessage = "Tu cuenta está suspendida temporalmente por infringir las normas de la plataforma. No podrás enviar mensajes hasta que finalice la suspensión."

// GateFailureMode selects what happens when the suspension lookup fails.
type GateFailureMode string

const (
	// GateFailClosed rejects the message with ErrModerationUnavailable.
	GateFailClosed GateFailureMode = "closed"
	// GateFailOpen logs the failure and classifies the message anyway.
	GateFailOpen GateFailureMode = "open"
)

// ServiceConfig holds the policy knobs of a Service.
type ServiceConfig struct {
	GateFailureMode GateFailureMode
	EffectsTimeout  time.Duration // bound on the post-decision writes
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		GateFailureMode: GateFailClosed,
		EffectsTimeout:  5 * time.Second,
	}
}

// Service runs the full moderation pipeline for one message at a time:
// suspension gate, classification, aggregation and enforcement. It keeps no
// per-request state and may be called concurrently.
type Service struct {
	config     ServiceConfig
	classifier *Classifier
	strikes    StrikeStore
	recorder   InfractionRecorder
	publisher  EventPublisher // nil disables flagged events
	now        func() time.Time
}

// NewService wires a Service. publisher may be nil.
func NewService(config ServiceConfig, classifier *Classifier, strikes StrikeStore, recorder InfractionRecorder, publisher EventPublisher) *Service {
	if config.GateFailureMode == "" {
		config.GateFailureMode = GateFailClosed
	}
	if config.EffectsTimeout <= 0 {
		config.EffectsTimeout = DefaultServiceConfig().EffectsTimeout
	}
	return &Service{
		config:     config,
		classifier: classifier,
		strikes:    strikes,
		recorder:   recorder,
		publisher:  publisher,
		now:        time.Now,
	}
}

// Moderate decides whether a message may be delivered.
//
// Validation errors are returned before anything else runs. A suspended
// sender is blocked without the content being scanned. Otherwise the content
// is classified and, when blocked, the enforcement writes are issued before
// returning. Their failures are logged and never change the result.
func (s *Service) Moderate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.ModerationLatency.Observe(time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return Result{}, err
	}

	suspended, err := s.checkSuspension(ctx, req.UserID)
	if err != nil {
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrModerationUnavailable, err)
	}
	if suspended {
		log.Printf("[moderation] SUSPENDED user=%s conversation=%s", req.UserID, req.ConversationID)
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeSuspended).Inc()
		return SuspendedResult(), nil
	}

	result := s.classifier.Decide(req.Content)

	// A caller that gave up while we were working gets no decision at all;
	// an inconclusive moderation must not turn into an implicit allow.
	if err := ctx.Err(); err != nil {
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrModerationUnavailable, err)
	}

	if !result.IsBlocked {
		metrics.ModerationRequests.WithLabelValues(metrics.OutcomeClean).Inc()
		return result, nil
	}

	log.Printf("[moderation] FLAGGED user=%s conversation=%s severity=%s infractions=%d",
		req.UserID, req.ConversationID, result.Severity, len(result.Infractions))
	metrics.ModerationRequests.WithLabelValues(metrics.OutcomeBlocked).Inc()
	for _, inf := range result.Infractions {
		metrics.InfractionsDetected.WithLabelValues(string(inf.Type)).Inc()
	}

	s.applyEffects(ctx, req, result)
	return result, nil
}

// checkSuspension reports whether userID is currently suspended. Lookup
// errors are returned only in fail-closed mode.
func (s *Service) checkSuspension(ctx context.Context, userID string) (bool, error) {
	record, err := s.strikes.GetUserStrike(ctx, userID)
	if err != nil {
		if s.config.GateFailureMode == GateFailOpen {
			log.Printf("[moderation] suspension lookup user=%s: %v (failing open)", userID, err)
			return false, nil
		}
		return false, fmt.Errorf("suspension lookup: %w", err)
	}
	return record.SuspendedAt(s.now()), nil
}

// SuspendedResult is the fixed decision returned for a suspended sender.
func SuspendedResult() Result {
	return Result{
		IsBlocked: true,
		Infractions: []Infraction{{
			Type:       TypeSuspension,
			Confidence: 1.0,
			Context:    "suspended",
			Severity:   SeverityCritical,
		}},
		Severity:         SeverityCritical,
		SuggestedMessage: SuspensionMessage,
	}
}

// applyEffects persists one record per infraction and then, for severe or
// critical results, issues a single strike. Writes run on a context detached
// from the caller so that a client hanging up does not abort them halfway.
func (s *Service) applyEffects(ctx context.Context, req Request, result Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.EffectsTimeout)
	defer cancel()

	for _, inf := range result.Infractions {
		rec := InfractionRecord{
			UserID:         req.UserID,
			ConversationID: req.ConversationID,
			MessageContent: req.Content,
			InfractionType: inf.Type,
			DetectedPatterns: DetectedPattern{
				MatchedText: inf.MatchedText,
				Context:     inf.Context,
				Confidence:  inf.Confidence,
			},
			Severity: inf.Severity,
		}
		if err := s.recorder.RecordInfraction(ctx, rec); err != nil {
			log.Printf("[moderation] record infraction user=%s type=%s: %v", req.UserID, inf.Type, err)
			metrics.PersistenceFailures.WithLabelValues("record_infraction").Inc()
		}
	}

	if result.Severity.Escalates() {
		if err := s.strikes.IncrementUserStrikes(ctx, req.UserID); err != nil {
			log.Printf("[moderation] increment strikes user=%s: %v", req.UserID, err)
			metrics.PersistenceFailures.WithLabelValues("increment_strikes").Inc()
		} else {
			metrics.StrikesIssued.Inc()
		}
	}

	if s.publisher == nil {
		return
	}
	evt := FlaggedEvent{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Severity:       result.Severity,
		Types:          infractionTypes(result.Infractions),
		Ts:             s.now().Unix(),
	}
	if err := s.publisher.PublishFlagged(evt); err != nil {
		log.Printf("[moderation] publish flagged user=%s: %v", req.UserID, err)
		metrics.PersistenceFailures.WithLabelValues("publish_flagged").Inc()
	}
}

// infractionTypes returns the distinct types in first-seen order.
func infractionTypes(infractions []Infraction) []InfractionType {
	var out []InfractionType
	seen := make(map[InfractionType]bool)
	for _, inf := range infractions {
		if !seen[inf.Type] {
			out = append(out, inf.Type)
			seen[inf.Type] = true
		}
	}
	return out
}
