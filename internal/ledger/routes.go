package ledger

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the dues grid routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.Periods)
	r.Post("/residents", h.RegisterResident)
	r.Route("/periods/{period}", func(r chi.Router) {
		r.Get("/", h.Period)
		r.Put("/", h.EnsurePeriod)

		r.Post("/members", h.AddMember)
		r.Delete("/members/{member}", h.RemoveMember)
		r.Get("/eligible-members", h.EligibleMembers)

		r.Post("/edit", h.EnterEdit)
		r.Post("/edit/toggle", h.ToggleCell)
		r.Post("/edit/bulk-paid", h.BulkMarkPaid)
		r.Post("/edit/rate", h.AdjustRate)
		r.Post("/edit/hoa-rate", h.AdjustHoaRate)
		r.Post("/edit/request-commit", h.RequestCommit)
		r.Post("/edit/verify-commit", h.VerifyCommit)
		r.Post("/edit/cancel", h.CancelEdit)
	})
}
