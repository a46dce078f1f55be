package customer

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/http/responder"
)

type handlers struct {
	svc *Service
}

type listQuery struct {
	Email  string `query:"email"`
	Name   string `query:"name"`
	Limit  int    `query:"limit" default:"50"`
	Offset int    `query:"offset"`
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var in CreateCustomerInput
	if err := binding.JSON(r, &in); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}
	c, err := h.svc.CreateCustomer(r.Context(), in)
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.Created(w, r, c)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.OK(w, r, c)
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	var q listQuery
	if err := binding.Query(r, &q); err != nil {
		responder.WriteError(w, r, binding.AsAppError(err))
		return
	}

	in := ListCustomersInput{Limit: q.Limit, Offset: q.Offset}
	if q.Email != "" {
		in.Where = append(in.Where, condition.Where{Field: "email", Value: q.Email})
	}
	if q.Name != "" {
		in.Where = append(in.Where, condition.Where{Field: "name", Value: q.Name, Operator: condition.OpContains})
	}

	customers, err := h.svc.ListCustomers(r.Context(), in)
	if err != nil {
		responder.WriteError(w, r, err)
		return
	}
	responder.OK(w, r, customers, responder.WithCount(len(customers)))
}
