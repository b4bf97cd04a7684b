package signer

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/Mindburn-Labs/claimvm/core/pkg/budget"
	"github.com/Mindburn-Labs/claimvm/core/pkg/claims"
	"github.com/Mindburn-Labs/claimvm/core/pkg/contracts"
	"github.com/Mindburn-Labs/claimvm/core/pkg/evmabi"
	"github.com/Mindburn-Labs/claimvm/core/pkg/executor"
	"github.com/Mindburn-Labs/claimvm/core/pkg/faults"
	"github.com/Mindburn-Labs/claimvm/core/pkg/observability"
	"github.com/Mindburn-Labs/claimvm/core/pkg/processor"
)

// Envelope is the top-level claim-processing pipeline: validate the
// processor, execute it against the claim, ABI-encode and hash the result,
// and sign the message hash with the attestor key.
type Envelope struct {
	exec      *executor.Executor
	signer    Signer
	telemetry *observability.Telemetry
	version   string
}

// Option configures an Envelope.
type Option func(*Envelope)

// WithTelemetry attaches tracing/metrics/logging.
func WithTelemetry(t *observability.Telemetry) Option {
	return func(e *Envelope) { e.telemetry = t }
}

// WithServerVersion injects a version tag into every processor before
// identity hashing.
func WithServerVersion(version string) Option {
	return func(e *Envelope) { e.version = version }
}

// WithBudget overrides the default execution budget.
func WithBudget(b budget.Budget) Option {
	return func(e *Envelope) { e.exec = executor.New(b) }
}

// NewEnvelope builds a pipeline around the given attestor signer.
func NewEnvelope(s Signer, opts ...Option) *Envelope {
	e := &Envelope{
		exec:   executor.New(budget.Default()),
		signer: s,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessClaim validates the processor document, executes it against the
// claim, and returns the signed artifact. On any failure no partial result
// is returned.
func (e *Envelope) ProcessClaim(ctx context.Context, claim *contracts.ProviderClaimData, processorDoc []byte, convention Convention) (result *contracts.ProcessedClaimData, err error) {
	ctx, span := e.telemetry.StartSpan(ctx, "claimvm.ProcessClaim")
	defer span.End()

	start := time.Now()
	defer func() {
		kind := ""
		if err != nil {
			kind = string(faults.KindOf(err))
			e.telemetry.Logger().ErrorContext(ctx, "claim processing failed",
				"provider", claim.Provider, "fault", kind, "error", err)
		} else {
			e.telemetry.Logger().InfoContext(ctx, "claim processed",
				"provider", claim.Provider, "outputs", len(result.Outputs))
		}
		e.telemetry.RecordOutcome(ctx, claim.Provider, time.Since(start), kind)
	}()

	if !convention.Valid() {
		return nil, faults.New(faults.KindSignerFailure, "unknown signature convention %q", convention)
	}

	proc, vres := processor.Validate(processorDoc)
	if !vres.Valid {
		return nil, faults.Invalid(vres.Issues)
	}
	if e.version != "" {
		proc, err = proc.WithVersion(e.version)
		if err != nil {
			return nil, faults.Wrap(faults.KindProcessorInvalid, err, "version injection failed")
		}
	}

	providerHash, err := claims.ProviderHash(claim)
	if err != nil {
		return nil, faults.Wrap(faults.KindProcessorInvalid, err, "claim context rejected")
	}

	vals, err := e.exec.Execute(proc, claim)
	if err != nil {
		return nil, err
	}

	pph, err := evmabi.ProcessorProviderHash(providerHash, proc)
	if err != nil {
		return nil, faults.Wrap(faults.KindEncodingFailure, err, "identity hash failed")
	}

	messageHash, err := evmabi.MessageHash(pph, proc.Outputs, vals)
	if err != nil {
		return nil, faults.Wrap(faults.KindEncodingFailure, err, "message encoding failed")
	}

	sig, err := e.signer.Sign(messageHash, convention)
	if err != nil {
		return nil, faults.Wrap(faults.KindSignerFailure, err, "attestor signing failed")
	}

	return &contracts.ProcessedClaimData{
		ProcessorProviderHash: pph,
		Signature:             "0x" + hex.EncodeToString(sig),
		Outputs:               proc.Outputs,
		Values:                vals,
	}, nil
}
