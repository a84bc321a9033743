package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sheikh-saqib/giving-vault/internal/gateway/memory"
	"github.com/sheikh-saqib/giving-vault/internal/ledger"
	"github.com/sheikh-saqib/giving-vault/internal/models"
	"github.com/shopspring/decimal"
)

// Handlers serves the vault over HTTP. Amounts in requests are display units
// at the asset scale; responses carry both base units and display units.
type Handlers struct {
	vault    *ledger.Vault
	decimals int32
	logger   zerolog.Logger
	sim      *memory.Gateway // non-nil only with the simulated gateway
}

func NewHandlers(vault *ledger.Vault, decimals int32, logger zerolog.Logger, sim *memory.Gateway) *Handlers {
	return &Handlers{vault: vault, decimals: decimals, logger: logger, sim: sim}
}

type amount struct {
	Base  decimal.Decimal `json:"base"`
	Units string          `json:"units"`
}

func (h *Handlers) amount(d decimal.Decimal) amount {
	return amount{Base: d, Units: models.FormatUnits(d, h.decimals)}
}

// maxBodyBytes bounds request bodies; every body is a small JSON object.
const maxBodyBytes = 4 << 10

type amountRequest struct {
	Amount string `json:"amount"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type receiptView struct {
	OperationID    string `json:"operation_id"`
	Kind           string `json:"kind"`
	Donor          string `json:"donor"`
	Amount         amount `json:"amount"`
	Principal      amount `json:"principal"`
	TotalPrincipal amount `json:"total_principal"`
	Replayed       bool   `json:"replayed"`
	CommittedAt    string `json:"committed_at"`
}

func (h *Handlers) receipt(r *models.Receipt) receiptView {
	return receiptView{
		OperationID:    r.OperationID,
		Kind:           string(r.Kind),
		Donor:          r.Donor,
		Amount:         h.amount(r.Amount),
		Principal:      h.amount(r.Principal),
		TotalPrincipal: h.amount(r.TotalPrincipal),
		Replayed:       r.Replayed,
		CommittedAt:    r.CommittedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Vault reports the pooled position from a single snapshot.
func (h *Handlers) Vault(w http.ResponseWriter, r *http.Request) {
	snap, err := h.vault.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vault":           h.vault.ID(),
		"beneficiary":     h.vault.Beneficiary(),
		"decimals":        h.decimals,
		"vault_balance":   h.amount(snap.VaultBalance),
		"total_principal": h.amount(snap.TotalPrincipal),
		"staking_rewards": h.amount(snap.Rewards),
		"shortfall":       h.amount(snap.Shortfall),
		"taken_at":        snap.TakenAt,
	})
}

func (h *Handlers) Beneficiary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"beneficiary": h.vault.Beneficiary()})
}

func (h *Handlers) VaultBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.vault.VaultBalance(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vault_balance": h.amount(bal)})
}

func (h *Handlers) StakingRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.vault.StakingRewards(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staking_rewards": h.amount(rewards)})
}

func (h *Handlers) DonateRewards(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.vault.DonateRewards(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.receipt(receipt))
}

func (h *Handlers) Donors(w http.ResponseWriter, r *http.Request) {
	donors := h.vault.Donors()
	out := make([]map[string]any, 0, len(donors))
	for _, d := range donors {
		out = append(out, map[string]any{"donor": d.Donor, "principal": h.amount(d.Principal)})
	}
	writeJSON(w, http.StatusOK, out)
}

// Donor shows a donor's wallet balance, receipt balance and principal.
func (h *Handlers) Donor(w http.ResponseWriter, r *http.Request) {
	donor, ok := h.donor(w, r)
	if !ok {
		return
	}
	wallet, err := h.vault.AccountBalance(r.Context(), donor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"donor":     donor,
		"wallet":    h.amount(wallet),
		"balance":   h.amount(h.vault.BalanceOf(donor)),
		"principal": h.amount(h.vault.PrincipalOf(donor)),
	})
}

func (h *Handlers) PrincipalOf(w http.ResponseWriter, r *http.Request) {
	donor, ok := h.donor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donor": donor, "principal": h.amount(h.vault.PrincipalOf(donor))})
}

func (h *Handlers) BalanceOf(w http.ResponseWriter, r *http.Request) {
	donor, ok := h.donor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donor": donor, "balance": h.amount(h.vault.BalanceOf(donor))})
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	donor, ok := h.donor(w, r)
	if !ok {
		return
	}
	amt, ok := h.readAmount(w, r)
	if !ok {
		return
	}

	receipt, err := h.vault.Deposit(r.Context(), ledger.DepositRequest{
		Donor:          donor,
		Amount:         amt,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeReceipt(w, h.receipt(receipt))
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	donor, ok := h.donor(w, r)
	if !ok {
		return
	}
	amt, ok := h.readAmount(w, r)
	if !ok {
		return
	}

	receipt, err := h.vault.Withdraw(r.Context(), ledger.WithdrawRequest{
		Donor:          donor,
		Amount:         amt,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeReceipt(w, h.receipt(receipt))
}

type entryView struct {
	ID             string `json:"id"`
	IntentID       string `json:"intent_id"`
	Kind           string `json:"kind"`
	Donor          string `json:"donor"`
	Amount         amount `json:"amount"`
	PrincipalDelta amount `json:"principal_delta"`
	CreatedAt      string `json:"created_at"`
}

func (h *Handlers) LedgerEntries(w http.ResponseWriter, r *http.Request) {
	donor := r.URL.Query().Get("donor")
	if donor != "" {
		normalized, err := models.ChecksumAddress(donor)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		donor = normalized
	}

	entries, err := h.vault.Entries(r.Context(), donor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			ID:             e.ID,
			IntentID:       e.IntentID,
			Kind:           string(e.Kind),
			Donor:          e.Donor,
			Amount:         h.amount(e.Amount),
			PrincipalDelta: h.amount(e.PrincipalDelta),
			CreatedAt:      e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) PendingIntents(w http.ResponseWriter, r *http.Request) {
	pending, err := h.vault.PendingIntents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(pending))
	for _, in := range pending {
		out = append(out, map[string]any{
			"id":         in.ID,
			"kind":       in.Kind,
			"donor":      in.Donor,
			"amount":     h.amount(in.Amount),
			"created_at": in.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ResolveIntent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transferred *bool `json:"transferred"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transferred == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: `body must be {"transferred": true|false}`})
		return
	}

	receipt, err := h.vault.ResolveIntent(r.Context(), chi.URLParam(r, "id"), *req.Transferred)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if receipt == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
		return
	}
	writeJSON(w, http.StatusOK, h.receipt(receipt))
}

func (h *Handlers) donor(w http.ResponseWriter, r *http.Request) (string, bool) {
	donor, err := models.ChecksumAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return donor, true
}

func (h *Handlers) readAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req amountRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: "invalid request body"})
		return decimal.Zero, false
	}
	amt, err := models.ParseUnits(req.Amount, h.decimals)
	if err != nil {
		h.writeError(w, r, err)
		return decimal.Zero, false
	}
	return amt, true
}

func writeReceipt(w http.ResponseWriter, v receiptView) {
	status := http.StatusCreated
	if v.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, v)
}

// writeError maps ledger errors to status codes. Anything unknown is a 500
// and is logged.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, models.ErrMalformedAmount),
		errors.Is(err, models.ErrFractionalAmount),
		errors.Is(err, models.ErrAmountTooLarge):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInvalidIdentity), errors.Is(err, models.ErrInvalidAddress):
		status, code = http.StatusBadRequest, "invalid_identity"
	case errors.Is(err, ledger.ErrInsufficientPrincipal):
		status, code = http.StatusUnprocessableEntity, "insufficient_principal"
	case errors.Is(err, ledger.ErrNoRewardsAvailable):
		status, code = http.StatusConflict, "no_rewards_available"
	case errors.Is(err, ledger.ErrOperationPending):
		status, code = http.StatusConflict, "operation_pending"
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		status, code = http.StatusConflict, "idempotency_conflict"
	case errors.Is(err, ledger.ErrIntentClosed):
		status, code = http.StatusConflict, "intent_closed"
	case errors.Is(err, ledger.ErrIntentNotFound):
		status, code = http.StatusNotFound, "intent_not_found"
	case errors.Is(err, ledger.ErrTransferFailed):
		status, code = http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, ledger.ErrGatewayUnavailable):
		status, code = http.StatusServiceUnavailable, "gateway_unavailable"
	case errors.Is(err, ledger.ErrCommitFailed):
		code = "commit_failed"
	case errors.Is(err, ledger.ErrNegativePrincipal):
		code = "negative_principal"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
