package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/giving-vault/internal/metrics"
)

// NewRouter wires the vault API. limiter may be nil.
func NewRouter(h *Handlers, logger zerolog.Logger, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}

		r.Route("/vault", func(r chi.Router) {
			r.Get("/", h.Vault)
			r.Get("/beneficiary", h.Beneficiary)
			r.Get("/balance", h.VaultBalance)
			r.Get("/rewards", h.StakingRewards)
			r.Post("/donations", h.DonateRewards)
		})

		r.Route("/donors", func(r chi.Router) {
			r.Get("/", h.Donors)
			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", h.Donor)
				r.Get("/principal", h.PrincipalOf)
				r.Get("/balance", h.BalanceOf)
				r.Post("/deposits", h.Deposit)
				r.Post("/withdrawals", h.Withdraw)
			})
		})

		r.Get("/ledger/entries", h.LedgerEntries)

		r.Route("/intents", func(r chi.Router) {
			r.Get("/pending", h.PendingIntents)
			r.Post("/{id}/resolve", h.ResolveIntent)
		})

		if h.sim != nil {
			r.Route("/sim", func(r chi.Router) {
				r.Post("/accounts/{address}/credit", h.SimCredit)
				r.Post("/vault/yield", h.SimYield)
				r.Post("/vault/slash", h.SimSlash)
			})
		}
	})

	return r
}
