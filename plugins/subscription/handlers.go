package subscription

import (
	"net/http"

	"github.com/creasty/defaults"
	"github.com/go-chi/chi/v5"

	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/http/responder"
)

type handlers struct {
	svc *Service
}

type cancelBody struct {
	AtPeriodEnd bool `json:"atPeriodEnd"`
}

type activeQuery struct {
	CustomerID string `query:"customerId"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var in CreateSubscriptionInput
	_ = defaults.Set(&in)
	if err := binding.JSON(r, &in); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	sub, err := h.svc.CreateSubscription(r.Context(), in)
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.Created(w, r, sub)
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelBody
	if r.ContentLength != 0 {
		if err := binding.JSON(r, &body); err != nil {
			responder.WriteError(w, r, binding.AsAppError(err))
			return
		}
	}
	sub, err := h.svc.CancelSubscription(r.Context(), CancelSubscriptionInput{
		SubscriptionID: chi.URLParam(r, "id"),
		AtPeriodEnd:    body.AtPeriodEnd,
	})
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.OK(w, r, sub)
}

func (h *handlers) listActive(w http.ResponseWriter, r *http.Request) {
	var q activeQuery
	if err := binding.Query(r, &q); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	subs, err := h.svc.ListActive(r.Context(), ListActiveInput{CustomerID: q.CustomerID})
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.OK(w, r, subs, responder.WithCount(len(subs)))
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	var in CheckoutInput
	_ = defaults.Set(&in)
	if err := binding.JSON(r, &in); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	session, err := h.svc.CreateCheckoutSession(r.Context(), in)
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.Created(w, r, session)
}
