package usage

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/http/responder"
)

type handlers struct {
	svc *Service
}

type usageQuery struct {
	Feature string     `query:"feature"`
	Since   *time.Time `query:"since"`
}

func (h *handlers) record(w http.ResponseWriter, r *http.Request) {
	var in RecordUsageInput
	if err := binding.JSON(r, &in); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	rec, err := h.svc.RecordUsage(r.Context(), in)
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.Created(w, r, rec)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	var q usageQuery
	if err := binding.Query(r, &q); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	summary, err := h.svc.GetUsage(r.Context(), GetUsageInput{
		CustomerID: chi.URLParam(r, "customerId"),
		Feature:    q.Feature,
		Since:      q.Since,
	})
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.OK(w, r, summary)
}
