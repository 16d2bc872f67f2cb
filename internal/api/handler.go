package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mtlprog/finsight/internal/account"
	"github.com/mtlprog/finsight/internal/chain"
	"github.com/mtlprog/finsight/internal/domain"
	"github.com/mtlprog/finsight/internal/live"
	"github.com/mtlprog/finsight/internal/portfolio"
	"github.com/mtlprog/finsight/internal/snapshot"
	"github.com/mtlprog/finsight/internal/user"
)

const (
	maxLimit     = 1000
	maxBodyBytes = 1 << 20
)

// SnapshotService is the snapshot ledger as used by the API.
type SnapshotService interface {
	Upsert(ctx context.Context, in snapshot.UpsertInput, userID string) (snapshot.Snapshot, error)
	Delete(ctx context.Context, id, userID string) error
	FindAllWithConversion(ctx context.Context, userID string, rng snapshot.Range) ([]snapshot.WithBalances, error)
	FindByAccountIDWithConversion(ctx context.Context, accountID, userID string, rng snapshot.Range) ([]snapshot.WithBalances, error)
	FindSnapshotsForDateWithConversion(ctx context.Context, userID, date string) ([]snapshot.WithBalances, error)
}

// AccountService manages the user's linked accounts.
type AccountService interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Account, error)
	Get(ctx context.Context, id, userID string) (domain.Account, error)
	Link(ctx context.Context, userID string, in account.LinkInput) (domain.Account, error)
	UpdateBalances(ctx context.Context, id, userID string, current, available domain.SignedMoney) (domain.Account, error)
	SyncAll(ctx context.Context) (account.SyncResult, error)
}

// SettingsService reads and updates user settings.
type SettingsService interface {
	FindOne(ctx context.Context, userID string) (*domain.UserSettings, error)
	Update(ctx context.Context, userID string, in user.Update) (domain.UserSettings, error)
}

// NetWorthService computes dashboard totals.
type NetWorthService interface {
	NetWorth(ctx context.Context, userID string) (portfolio.NetWorth, error)
}

// Exporter renders snapshot history as XLSX.
type Exporter interface {
	WriteXLSX(ctx context.Context, out io.Writer, userID string, rng snapshot.Range) error
}

// BalanceReader reads on-chain wallet balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, network, address string) (string, error)
	ValidateAddress(network, address string) bool
}

// ForwardFiller runs the forward-fill sweep.
type ForwardFiller interface {
	ForwardFill(ctx context.Context) (snapshot.FillResult, error)
}

// Handler provides the HTTP endpoints of the API.
type Handler struct {
	snapshots SnapshotService
	accounts  AccountService
	settings  SettingsService
	portfolio NetWorthService
	exporter  Exporter
	chain     BalanceReader
	filler    ForwardFiller
	hub       *live.Hub
}

// Deps groups the services behind the API.
type Deps struct {
	Snapshots SnapshotService
	Accounts  AccountService
	Settings  SettingsService
	Portfolio NetWorthService
	Exporter  Exporter
	Chain     BalanceReader
	Filler    ForwardFiller
	Hub       *live.Hub
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		snapshots: d.Snapshots,
		accounts:  d.Accounts,
		settings:  d.Settings,
		portfolio: d.Portfolio,
		exporter:  d.Exporter,
		chain:     d.Chain,
		filler:    d.Filler,
		hub:       d.Hub,
	}
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	snaps, err := h.snapshots.FindAllWithConversion(r.Context(), userID, parseRange(r))
	if err != nil {
		writeServiceError(w, err, "failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// GetSnapshotsForDate handles GET /api/v1/snapshots/date/{date}.
func (h *Handler) GetSnapshotsForDate(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	date := chi.URLParam(r, "date")
	if _, err := domain.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}
	snaps, err := h.snapshots.FindSnapshotsForDateWithConversion(r.Context(), userID, date)
	if err != nil {
		writeServiceError(w, err, "failed to list snapshots for date")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// ListAccountSnapshots handles GET /api/v1/accounts/{id}/snapshots.
func (h *Handler) ListAccountSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	acc, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, err, "failed to get account")
		return
	}
	snaps, err := h.snapshots.FindByAccountIDWithConversion(r.Context(), acc.ID, userID, parseRange(r))
	if err != nil {
		writeServiceError(w, err, "failed to list account snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// UpsertSnapshot handles POST /api/v1/snapshots. Snapshots entered by hand default to USER_UPDATE.
func (h *Handler) UpsertSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var in snapshot.UpsertInput
	if !decodeBody(w, r, &in) {
		return
	}
	if in.SnapshotType == "" {
		in.SnapshotType = snapshot.TypeUserUpdate
	}
	if _, err := h.accounts.Get(r.Context(), in.AccountID, userID); err != nil {
		writeServiceError(w, err, "failed to get account")
		return
	}
	s, err := h.snapshots.Upsert(r.Context(), in, userID)
	if err != nil {
		writeServiceError(w, err, "failed to upsert snapshot")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSnapshot handles DELETE /api/v1/snapshots/{id}.
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	if err := h.snapshots.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeServiceError(w, err, "failed to delete snapshot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportSnapshots handles GET /api/v1/snapshots/export.xlsx.
func (h *Handler) ExportSnapshots(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshots.xlsx"`)
	if err := h.exporter.WriteXLSX(r.Context(), w, userID, parseRange(r)); err != nil {
		w.Header().Del("Content-Disposition")
		writeServiceError(w, err, "failed to export snapshots")
	}
}

// ListAccounts handles GET /api/v1/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	accounts, err := h.accounts.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccount handles GET /api/v1/accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	acc, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, err, "failed to get account")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// LinkAccount handles POST /api/v1/accounts.
func (h *Handler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var in account.LinkInput
	if !decodeBody(w, r, &in) {
		return
	}
	acc, err := h.accounts.Link(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, err, "failed to link account")
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

type balancesRequest struct {
	CurrentBalance   domain.SignedMoney `json:"currentBalance"`
	AvailableBalance domain.SignedMoney `json:"availableBalance"`
}

// UpdateAccountBalances handles PUT /api/v1/accounts/{id}/balances.
func (h *Handler) UpdateAccountBalances(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var req balancesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acc, err := h.accounts.UpdateBalances(r.Context(), chi.URLParam(r, "id"), userID, req.CurrentBalance, req.AvailableBalance)
	if err != nil {
		writeServiceError(w, err, "failed to update balances")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GetNetWorth handles GET /api/v1/dashboard/net-worth.
func (h *Handler) GetNetWorth(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	nw, err := h.portfolio.NetWorth(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to compute net worth")
		return
	}
	writeJSON(w, http.StatusOK, nw)
}

// GetSettings handles GET /api/v1/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	s, err := h.settings.FindOne(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "failed to get settings")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "settings not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /api/v1/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var in user.Update
	if !decodeBody(w, r, &in) {
		return
	}
	s, err := h.settings.Update(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, err, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetCryptoBalance handles GET /api/v1/crypto/{network}/{address}/balance.
func (h *Handler) GetCryptoBalance(w http.ResponseWriter, r *http.Request) {
	network, address := chi.URLParam(r, "network"), chi.URLParam(r, "address")
	balance, err := h.chain.GetBalance(r.Context(), network, address)
	if err != nil {
		writeServiceError(w, err, "failed to read wallet balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"network": network, "address": address, "balance": balance})
}

// ValidateCryptoAddress handles GET /api/v1/crypto/{network}/{address}/validate.
func (h *Handler) ValidateCryptoAddress(w http.ResponseWriter, r *http.Request) {
	network, address := chi.URLParam(r, "network"), chi.URLParam(r, "address")
	writeJSON(w, http.StatusOK, map[string]bool{"valid": h.chain.ValidateAddress(network, address)})
}

// ServeLive handles GET /api/v1/ws.
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	live.ServeWS(w, r, h.hub, userID)
}

// RunSync handles POST /api/v1/jobs/sync.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.SyncAll(r.Context())
	if err != nil {
		slog.Error("manual account sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "account sync failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RunForwardFill handles POST /api/v1/jobs/forward-fill.
func (h *Handler) RunForwardFill(w http.ResponseWriter, r *http.Request) {
	res, err := h.filler.ForwardFill(r.Context())
	if err != nil {
		slog.Error("manual forward-fill failed", "error", err)
		writeError(w, http.StatusInternalServerError, "forward-fill failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseRange(r *http.Request) snapshot.Range {
	q := r.URL.Query()
	rng := snapshot.Range{From: q.Get("from"), To: q.Get("to")}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			rng.Limit = min(n, maxLimit)
		}
	}
	return rng
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps package sentinel errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound), errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, snapshot.ErrInvalidInput), errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, user.ErrInvalidSettings), errors.Is(err, chain.ErrUnsupportedNetwork),
		errors.Is(err, chain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, snapshot.ErrConflict), errors.Is(err, account.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chain.ErrAllEndpointsFailed):
		writeError(w, http.StatusBadGateway, "wallet balance unavailable")
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
