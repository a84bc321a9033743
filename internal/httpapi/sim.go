package httpapi

import (
	"net/http"
)

// Simulation endpoints drive the in-memory gateway: fund donor wallets,
// accrue yield on the vault, or slash it to provoke a shortfall.

func (h *Handlers) SimCredit(w http.ResponseWriter, r *http.Request) {
	account, ok := h.donor(w, r)
	if !ok {
		return
	}
	amt, ok := h.readAmount(w, r)
	if !ok {
		return
	}
	h.sim.Credit(account, amt)
	h.simBalance(w, r, account)
}

func (h *Handlers) SimYield(w http.ResponseWriter, r *http.Request) {
	amt, ok := h.readAmount(w, r)
	if !ok {
		return
	}
	h.sim.Credit(h.vault.ID(), amt)
	h.simBalance(w, r, h.vault.ID())
}

func (h *Handlers) SimSlash(w http.ResponseWriter, r *http.Request) {
	amt, ok := h.readAmount(w, r)
	if !ok {
		return
	}
	h.sim.Debit(h.vault.ID(), amt)
	h.simBalance(w, r, h.vault.ID())
}

func (h *Handlers) simBalance(w http.ResponseWriter, r *http.Request, account string) {
	bal, err := h.vault.AccountBalance(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": h.amount(bal)})
}
