package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vitwit/databox/challenge"
	"github.com/vitwit/databox/logger"
	"github.com/vitwit/databox/metrics"
	"github.com/vitwit/databox/types"
	"github.com/vitwit/databox/verify"
)

type payerKey struct{}

// Payer returns the verified payer address for a gated request, empty when
// the route is free or the payer could not be recovered.
func Payer(ctx context.Context) string {
	payer, _ := ctx.Value(payerKey{}).(string)
	return payer
}

// PriceFunc resolves what a given request costs. It runs per request so
// routes can price individual resources differently.
type PriceFunc func(r *http.Request) types.PriceSpec

// FixedPrice prices every request of a route identically.
func FixedPrice(spec types.PriceSpec) PriceFunc {
	return func(*http.Request) types.PriceSpec { return spec }
}

// Gate turns a priced route into a 402-guarded one. Requests without a
// proof header get the challenge; requests with one get verified and either
// rejected with a reason or passed through with the payer on the context.
type Gate struct {
	verifier verify.Verifier
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewGate(verifier verify.Verifier, log logger.Logger, rec metrics.Recorder) *Gate {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Gate{verifier: verifier, log: log, metrics: rec}
}

// Require wraps a handler with the payment gate.
func (g *Gate) Require(price PriceFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			spec := price(r)
			ch := challenge.Issue(spec)

			header := r.Header.Get(types.PaymentHeader)
			if header == "" {
				g.metrics.IncCounter("challenge_issued", map[string]string{"network": spec.Network.String()})
				writeJSON(w, http.StatusPaymentRequired, ch)
				return
			}

			proof, err := types.DecodeProofHeader(header)
			if err != nil {
				writeError(w, http.StatusPaymentRequired, kindProtocolError, err.Error(),
					map[string]any{"reason": "malformed-proof"})
				return
			}

			start := time.Now()
			result, err := g.verifier.Verify(r.Context(), proof, &ch.Accepts[0])
			if err != nil {
				g.log.Error("verification failed", map[string]any{"error": err.Error()})
				writeFailure(w, err)
				return
			}
			g.metrics.ObserveLatency("verify", time.Since(start), map[string]string{"network": spec.Network.String()})

			if !result.Accepted {
				g.metrics.IncCounter("payment_rejected", map[string]string{"network": spec.Network.String()})
				writeError(w, http.StatusPaymentRequired, kindPaymentRejected, "payment rejected",
					map[string]any{"reason": result.Reason})
				return
			}

			g.metrics.IncCounter("payment_accepted", map[string]string{"network": spec.Network.String()})
			g.log.Info("payment accepted", map[string]any{
				"path":  r.URL.Path,
				"payer": result.Payer,
			})

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), payerKey{}, result.Payer)))
		})
	}
}
