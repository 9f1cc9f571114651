// Package pipeline runs the order risk evaluation behind the job queue.
//
// One job equals one admitted webhook delivery. Processing parses the
// order payload, bumps identity velocity counters, scores the order,
// persists the result with its evidence trail, and pushes the verdict
// back to the shop platform on a best-effort basis. The whole pass is
// safe to replay: the admission ledger fences re-runs before any counter
// moves.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kenny3D1/fraudpop/internal/jobs"
	"github.com/Kenny3D1/fraudpop/internal/ledger"
	"github.com/Kenny3D1/fraudpop/internal/logging"
	"github.com/Kenny3D1/fraudpop/internal/metrics"
	"github.com/Kenny3D1/fraudpop/internal/retry"
	"github.com/Kenny3D1/fraudpop/internal/risk"
	"github.com/Kenny3D1/fraudpop/internal/scoring"
	"github.com/Kenny3D1/fraudpop/internal/traces"
	"github.com/Kenny3D1/fraudpop/internal/vault"
	"github.com/Kenny3D1/fraudpop/internal/writeback"
)

// OrderJob is the queue payload for one admitted orders/create delivery.
type OrderJob struct {
	EventID string          `json:"event_id"`
	ShopID  string          `json:"shop_id"`
	Topic   string          `json:"topic"`
	Order   json.RawMessage `json:"order"`
}

// Processor executes order risk evaluation jobs.
type Processor struct {
	ledger    ledger.Store
	vault     vault.Store
	hasher    *vault.Hasher
	risks     risk.Store
	engine    *scoring.Engine
	writeback *writeback.Client
	token     string // admin API token; empty disables writeback
	logger    *slog.Logger
}

// NewProcessor wires the pipeline. wb may be nil (writeback disabled).
func NewProcessor(
	ledgerStore ledger.Store,
	vaultStore vault.Store,
	hasher *vault.Hasher,
	riskStore risk.Store,
	engine *scoring.Engine,
	wb *writeback.Client,
	token string,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		ledger:    ledgerStore,
		vault:     vaultStore,
		hasher:    hasher,
		risks:     riskStore,
		engine:    engine,
		writeback: wb,
		token:     token,
		logger:    logger,
	}
}

// Register binds the processor to its job type.
func (p *Processor) Register(runner *jobs.Runner) {
	runner.Register(jobs.TypeProcessOrder, p.ProcessOrder)
}

// ProcessOrder handles one process_order job attempt.
//
// A payload that cannot be parsed is a permanent failure: redelivery of
// the same bytes can never succeed, so burning retries on it only delays
// the queue. Store errors stay transient and ride the retry schedule.
func (p *Processor) ProcessOrder(ctx context.Context, job *jobs.Job) error {
	var oj OrderJob
	if err := json.Unmarshal(job.Payload, &oj); err != nil {
		return retry.Permanent(fmt.Errorf("decode job payload: %w", err))
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.ProcessOrder",
		traces.Shop(oj.ShopID), traces.Topic(oj.Topic), traces.JobID(job.ID))
	defer span.End()

	logger := p.logger.With("eventId", oj.EventID, "shop", oj.ShopID)
	ctx = logging.WithLogger(ctx, logger)

	// Replay fence: a completed event must not bump counters again. The
	// at-least-once queue replays jobs whose worker died after finishing;
	// without this check every replay would inflate velocity.
	event, err := p.ledger.Get(ctx, oj.EventID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("load admission record: %w", err)
	}
	if event != nil && event.ProcessedAt != nil {
		logger.Info("event already processed, skipping replay")
		return nil
	}

	facts, err := ParseOrder(oj.ShopID, oj.Order)
	if err != nil {
		return retry.Permanent(err)
	}
	span.SetAttributes(traces.OrderID(facts.OrderID))
	logger = logger.With("orderId", facts.OrderID)

	// A storefront fingerprint beacon may have landed for this order.
	if capture, err := p.risks.LatestCapture(ctx, oj.ShopID, facts.OrderID); err == nil {
		facts.DeviceID = capture.DeviceID
		if facts.IP == "" {
			facts.IP = capture.IP
		}
	} else if !errors.Is(err, risk.ErrNotFound) {
		return fmt.Errorf("load device capture: %w", err)
	}

	identity, hashes, err := p.bumpIdentities(ctx, facts)
	if err != nil {
		return fmt.Errorf("bump identity counters: %w", err)
	}

	result := p.engine.Score(facts, identity)
	metrics.VerdictsTotal.WithLabelValues(string(result.Verdict)).Inc()
	span.SetAttributes(traces.Score(result.Score), traces.Verdict(string(result.Verdict)))

	if err := p.persist(ctx, facts, hashes, result); err != nil {
		return err
	}

	if err := p.ledger.MarkProcessed(ctx, oj.EventID); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}

	logger.Info("order scored",
		"score", result.Score,
		"verdict", result.Verdict,
		"reasons", result.Reasons,
	)

	p.pushVerdict(ctx, facts, result)
	return nil
}

// identityHashes keeps the per-kind digests for the evidence trail. Raw
// identifier values never reach storage.
type identityHashes struct {
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
	Device string `json:"device,omitempty"`
}

func (p *Processor) bumpIdentities(ctx context.Context, facts scoring.OrderFacts) (scoring.IdentityFacts, identityHashes, error) {
	var identity scoring.IdentityFacts
	var hashes identityHashes

	bump := func(kind vault.Kind, value string) (int, string, error) {
		h := p.hasher.Hash(facts.ShopID, kind, value)
		if h == "" {
			return 0, "", nil
		}
		prior, err := p.vault.Bump(ctx, kind, h)
		if err != nil {
			return 0, "", fmt.Errorf("bump %s: %w", kind, err)
		}
		return prior, h, nil
	}

	var err error
	if identity.RepeatEmail, hashes.Email, err = bump(vault.KindEmail, facts.Email); err != nil {
		return identity, hashes, err
	}
	if hashes.Email != "" {
		metrics.IdentityBumpsTotal.WithLabelValues(string(vault.KindEmail)).Inc()
	}
	if identity.RepeatIP, hashes.IP, err = bump(vault.KindIP, facts.IP); err != nil {
		return identity, hashes, err
	}
	if hashes.IP != "" {
		metrics.IdentityBumpsTotal.WithLabelValues(string(vault.KindIP)).Inc()
	}
	if identity.RepeatDevice, hashes.Device, err = bump(vault.KindDevice, facts.DeviceID); err != nil {
		return identity, hashes, err
	}
	if hashes.Device != "" {
		metrics.IdentityBumpsTotal.WithLabelValues(string(vault.KindDevice)).Inc()
	}
	return identity, hashes, nil
}

func (p *Processor) persist(ctx context.Context, facts scoring.OrderFacts, hashes identityHashes, result *scoring.Result) error {
	if err := p.risks.Upsert(ctx, &risk.OrderRisk{
		ShopID:     facts.ShopID,
		OrderID:    facts.OrderID,
		Score:      result.Score,
		RulesScore: result.RulesScore,
		Verdict:    result.Verdict,
		Reasons:    result.Reasons,
		Evidence:   result.Evidence,
	}); err != nil {
		return fmt.Errorf("upsert order risk: %w", err)
	}

	// Input snapshot for the audit trail, identifiers already hashed.
	if err := p.risks.AppendEvidence(ctx, &risk.EvidenceEntry{
		ShopID:  facts.ShopID,
		OrderID: facts.OrderID,
		Source:  "input",
		Payload: map[string]any{
			"total_price":      facts.TotalPrice,
			"currency":         facts.Currency,
			"billing_country":  facts.BillingCountry,
			"shipping_country": facts.ShippingCountry,
			"line_item_count":  facts.LineItemCount,
			"email_hash":       hashes.Email,
			"ip_hash":          hashes.IP,
			"device_hash":      hashes.Device,
		},
	}); err != nil {
		return fmt.Errorf("append input evidence: %w", err)
	}

	if err := p.risks.AppendEvidence(ctx, &risk.EvidenceEntry{
		ShopID:  facts.ShopID,
		OrderID: facts.OrderID,
		Source:  "scores",
		Payload: map[string]any{
			"score":       result.Score,
			"rules_score": result.RulesScore,
			"verdict":     string(result.Verdict),
			"reasons":     result.Reasons,
			"evidence":    result.Evidence,
		},
	}); err != nil {
		return fmt.Errorf("append score evidence: %w", err)
	}
	return nil
}

// pushVerdict writes the verdict metafield. Best-effort: failures update
// the writeback status and stop there, the scored result already stands.
func (p *Processor) pushVerdict(ctx context.Context, facts scoring.OrderFacts, result *scoring.Result) {
	logger := logging.L(ctx)

	if p.writeback == nil || p.token == "" {
		return
	}

	err := p.writeback.Write(ctx, facts.ShopID, p.token, facts.OrderID, writeback.Verdict{
		Score:   result.Score,
		Verdict: string(result.Verdict),
		Reasons: result.Reasons,
	})

	status := risk.WritebackDone
	if err != nil {
		status = risk.WritebackFailed
		logger.Warn("verdict writeback failed", "error", err)
	}
	if serr := p.risks.SetWriteback(ctx, facts.ShopID, facts.OrderID, status); serr != nil {
		logger.Error("update writeback status", "error", serr)
	}
	_ = p.risks.AppendEvidence(ctx, &risk.EvidenceEntry{
		ShopID:  facts.ShopID,
		OrderID: facts.OrderID,
		Source:  "writeback",
		Payload: map[string]any{
			"status": string(status),
			"error":  errString(err),
		},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
