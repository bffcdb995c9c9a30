package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hoaboard/hoaboard/internal/observability"
	"github.com/hoaboard/hoaboard/internal/platform/httpx"
	"github.com/hoaboard/hoaboard/internal/shared"
)

// Directory is the resident directory consumed by the member flows.
type Directory interface {
	ListEligibleMembers(ctx context.Context, period string) ([]string, error)
	RegisterResident(ctx context.Context, name string) error
}

// Handler exposes the dues grid JSON API consumed by the dashboard client.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	directory Directory
	metrics   *observability.Metrics
	validate  *validator.Validate
	printer   *message.Printer
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, dir Directory, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		directory: dir,
		metrics:   metrics,
		validate:  validator.New(),
		printer:   message.NewPrinter(language.English),
	}
}

// Period loads the grid for one period.
func (h *Handler) Period(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	vm, err := h.service.View(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondPeriod(w, vm)
}

// Periods lists known period keys.
func (h *Handler) Periods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.service.ListPeriods(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

// EnsurePeriod creates an empty period document on first use.
func (h *Handler) EnsurePeriod(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	if err := h.service.EnsurePeriod(r.Context(), period); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddMember adds a member row to a period, outside any edit session.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	period := chi.URLParam(r, "period")
	if err := h.service.AddMember(r.Context(), period, req.Name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveMember deletes a whole member row. Idempotent.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	member := chi.URLParam(r, "member")
	if err := h.service.RemoveMember(r.Context(), period, member); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EligibleMembers lists residents not yet on the period's ledger.
func (h *Handler) EligibleMembers(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	names, err := h.directory.ListEligibleMembers(r.Context(), period)
	if err != nil {
		h.logger.Error("list eligible members", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "directory unavailable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": names})
}

// RegisterResident adds a resident to the subdivision directory. A resident
// must exist here before the add-member flow can place them on a ledger.
func (h *Handler) RegisterResident(w http.ResponseWriter, r *http.Request) {
	var req registerResidentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.directory.RegisterResident(r.Context(), req.Name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// EnterEdit opens an edit session on a period for the signed-in admin.
func (h *Handler) EnterEdit(w http.ResponseWriter, r *http.Request) {
	sess, adminID, adminName, ok := h.identity(w, r)
	if !ok {
		return
	}
	period := chi.URLParam(r, "period")
	edit, err := h.service.OpenSession(r.Context(), sess.ID, period, adminID, adminName)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// ToggleCell flips paid for one member/slot inside the edit session.
func (h *Handler) ToggleCell(w http.ResponseWriter, r *http.Request) {
	var req toggleCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.ToggleCell(req.Member, req.Slot); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// BulkMarkPaid forces every selected cell to paid.
func (h *Handler) BulkMarkPaid(w http.ResponseWriter, r *http.Request) {
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.BulkMarkSelectedPaid(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// AdjustRate updates one slot's local rate.
func (h *Handler) AdjustRate(w http.ResponseWriter, r *http.Request) {
	var req adjustRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.AdjustRate(req.Slot, req.Amount); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// AdjustHoaRate updates the membership-fee rate.
func (h *Handler) AdjustHoaRate(w http.ResponseWriter, r *http.Request) {
	var req adjustHoaRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.AdjustHoaRate(req.Amount); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// RequestCommit freezes the change-set and waits for re-authentication.
func (h *Handler) RequestCommit(w http.ResponseWriter, r *http.Request) {
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.RequestCommit(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondSession(w, edit)
}

// VerifyCommit runs the commit gate and persists the change-set.
func (h *Handler) VerifyCommit(w http.ResponseWriter, r *http.Request) {
	var req verifyCommitRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	err := edit.VerifyAndCommit(r.Context(), req.Password)
	switch {
	case err == nil:
		h.metrics.LedgerCommit("committed")
		h.service.CloseSession(sess.ID)
		h.respondSession(w, edit)
	case errors.Is(err, shared.ErrPartialAuditFailure):
		// Ledger write took; the trail is short for this commit. The
		// session is closed and the caller gets a warning on the
		// otherwise successful response.
		h.metrics.LedgerCommit("partial_audit")
		h.service.CloseSession(sess.ID)
		httpx.JSON(w, http.StatusOK, sessionResponse{
			State:         edit.State(),
			SelectedCells: edit.SelectedCells(),
			Warning:       err.Error(),
		})
	case errors.Is(err, shared.ErrIncorrectPassword):
		h.metrics.LedgerCommit("rejected")
		httpx.RespondError(w, err)
	case errors.Is(err, shared.ErrStoreUnavailable):
		h.metrics.LedgerCommit("store_error")
		httpx.RespondError(w, err)
	default:
		httpx.RespondError(w, err)
	}
}

// CancelEdit rolls the session back to its snapshot.
func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	edit, ok := h.editSession(w, r)
	if !ok {
		return
	}
	if err := edit.Cancel(r.Context()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.service.CloseSession(sess.ID)
	h.respondSession(w, edit)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (*shared.Session, string, string, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.Admin() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "not signed in")
		return nil, "", "", false
	}
	name := sess.Get("admin_name")
	if name == "" {
		name = sess.Admin()
	}
	return sess, sess.Admin(), name, true
}

func (h *Handler) editSession(w http.ResponseWriter, r *http.Request) (*EditSession, bool) {
	sess, _, _, ok := h.identity(w, r)
	if !ok {
		return nil, false
	}
	edit, err := h.service.Session(sess.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return edit, true
}

func (h *Handler) respondSession(w http.ResponseWriter, edit *EditSession) {
	httpx.JSON(w, http.StatusOK, sessionResponse{
		State:         edit.State(),
		SelectedCells: edit.SelectedCells(),
	})
}

func (h *Handler) respondPeriod(w http.ResponseWriter, vm *ViewModel) {
	doc := vm.Projection()
	if doc == nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	totals := doc.Record.ComputeTotals()
	resp := periodResponse{
		Period: doc.Period,
		Record: doc.Record,
		Rates:  doc.Rates,
		Totals: totals,
	}
	resp.TotalsDisplay.Dues = h.printer.Sprintf("%.2f", totals.TotalDuesPaid)
	resp.TotalsDisplay.Fee = h.printer.Sprintf("%.2f", totals.TotalFeePaid)
	httpx.JSON(w, http.StatusOK, resp)
}
