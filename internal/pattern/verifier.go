package pattern

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/intent-core/internal/config"
	"github.com/sells-group/intent-core/internal/model"
	"github.com/sells-group/intent-core/pkg/deliverability"
)

// KnownEmail is an already-confirmed address for a company, used as ground
// truth during verification.
type KnownEmail struct {
	First string `json:"first"`
	Last  string `json:"last"`
	Email string `json:"email"`
}

// Prober performs a protocol-level mailbox check. It is policy-gated since
// some mail servers penalize probing.
type Prober interface {
	Probe(ctx context.Context, email string) (bool, error)
}

// VerifyInput carries everything the verifier may consult.
type VerifyInput struct {
	Template     string
	Domain       string
	DomainStatus model.DomainStatus
	KnownGood    []KnownEmail

	// SampleFirst/SampleLast seed the synthetic address for external
	// checks. Defaults are used when empty.
	SampleFirst string
	SampleLast  string
}

// CheckOutcome records one verification check and its contribution.
type CheckOutcome struct {
	Check  string               `json:"check"`
	Tier   model.ConfidenceTier `json:"tier"`
	Detail string               `json:"detail,omitempty"`
}

// Verification is the verifier's result.
type Verification struct {
	Confidence model.ConfidenceTier `json:"confidence"`
	Checks     []CheckOutcome       `json:"checks,omitempty"`
}

// Verifier grades a candidate pattern through ordered, gating checks. The
// final confidence is the minimum of all checks performed: a single hard
// failure overrides earlier optimism.
type Verifier struct {
	cfg    config.PatternConfig
	deliv  deliverability.Client // optional
	prober Prober                // optional
}

// NewVerifier creates a Verifier. Both the deliverability client and the
// prober may be nil; their checks are skipped when absent.
func NewVerifier(cfg config.PatternConfig, deliv deliverability.Client, prober Prober) *Verifier {
	return &Verifier{cfg: cfg, deliv: deliv, prober: prober}
}

// Verify runs the check sequence for one candidate pattern.
func (v *Verifier) Verify(ctx context.Context, in VerifyInput) *Verification {
	out := &Verification{}

	// Check 1: render against known-good emails. Exact matches promote to
	// verified immediately, with no external calls.
	if len(in.KnownGood) > 0 {
		matches, mismatches := v.checkKnownGood(in)
		switch {
		case mismatches == 0 && matches > 0:
			out.Checks = append(out.Checks, CheckOutcome{Check: "known_good", Tier: model.TierVerified})
			out.Confidence = model.TierVerified
			return out
		case matches == 0:
			// The pattern renders none of the confirmed addresses: it is wrong.
			out.Checks = append(out.Checks, CheckOutcome{Check: "known_good", Tier: model.TierFailed})
			out.Confidence = model.TierFailed
			return out
		default:
			out.Checks = append(out.Checks, CheckOutcome{
				Check:  "known_good",
				Tier:   model.TierLikelyValid,
				Detail: "partial match",
			})
		}
	}

	// Check 2: MX gate. No mail exchanger means nothing downstream can
	// rescue the pattern.
	if !in.DomainStatus.Mailable() {
		out.Checks = append(out.Checks, CheckOutcome{
			Check:  "mx",
			Tier:   model.TierFailed,
			Detail: string(in.DomainStatus),
		})
		out.Confidence = model.TierFailed
		return out
	}

	synthetic := v.syntheticAddress(in)

	// Check 3: optional protocol-level mailbox probe.
	if v.cfg.ProbeEnabled && v.prober != nil && synthetic != "" {
		ok, err := v.prober.Probe(ctx, synthetic)
		switch {
		case err != nil:
			// Inconclusive probe is a non-result, not a failure.
			zap.L().Debug("pattern: probe inconclusive", zap.String("email", synthetic), zap.Error(err))
		case ok:
			out.Checks = append(out.Checks, CheckOutcome{Check: "probe", Tier: model.TierVerified})
		default:
			out.Checks = append(out.Checks, CheckOutcome{Check: "probe", Tier: model.TierFailed})
		}
	}

	// Check 4: deliverability provider on a synthetic address.
	if v.deliv != nil && synthetic != "" {
		resp, err := v.deliv.Check(ctx, synthetic)
		if err != nil {
			// Provider unavailable: no result from this check.
			zap.L().Warn("pattern: deliverability check unavailable", zap.Error(err))
		} else {
			out.Checks = append(out.Checks, CheckOutcome{
				Check:  "deliverability",
				Tier:   MapResultCode(resp.Result),
				Detail: string(resp.Result),
			})
		}
	}

	// Final confidence: minimum of all checks performed.
	out.Confidence = model.TierUnverified
	for i, c := range out.Checks {
		if i == 0 {
			out.Confidence = c.Tier
			continue
		}
		out.Confidence = model.MinTier(out.Confidence, c.Tier)
	}
	return out
}

// checkKnownGood renders the template for each known person and counts
// exact and failed matches.
func (v *Verifier) checkKnownGood(in VerifyInput) (matches, mismatches int) {
	for _, kg := range in.KnownGood {
		rendered, err := Render(in.Template, kg.First, kg.Last, in.Domain)
		if err != nil {
			mismatches++
			continue
		}
		if strings.EqualFold(rendered, strings.TrimSpace(kg.Email)) {
			matches++
		} else {
			mismatches++
		}
	}
	return matches, mismatches
}

func (v *Verifier) syntheticAddress(in VerifyInput) string {
	first, last := in.SampleFirst, in.SampleLast
	if first == "" && last == "" {
		first, last = "jane", "doe"
	}
	addr, err := Render(in.Template, first, last, in.Domain)
	if err != nil {
		return ""
	}
	return addr
}

// MapResultCode translates a deliverability verdict into a confidence tier.
func MapResultCode(code deliverability.ResultCode) model.ConfidenceTier {
	switch code {
	case deliverability.ResultDeliverable:
		return model.TierVerified
	case deliverability.ResultCatchAll, deliverability.ResultRole, deliverability.ResultRisky:
		return model.TierLikelyValid
	default:
		// invalid, disposable, unknown
		return model.TierFailed
	}
}
