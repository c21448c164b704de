package agentapi

import (
	"errors"
	"net/http"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/apiframework"
)

func AddAgentRoutes(mux *http.ServeMux, service agentservice.Service) {
	h := &handler{service: service}

	mux.HandleFunc("POST /agents", h.create)
	mux.HandleFunc("GET /agents", h.list)
	mux.HandleFunc("GET /agents/{id}", h.get)
	mux.HandleFunc("PUT /agents/{id}", h.update)
	mux.HandleFunc("DELETE /agents/{id}", h.delete)
}

type handler struct {
	service agentservice.Service
}

func mapErr(err error) error {
	if errors.Is(err, agentservice.ErrAgentNotFound) {
		return apiframework.NotFound(err.Error())
	}
	if errors.Is(err, agentservice.ErrAgentExists) {
		return apiframework.Conflict(err.Error())
	}
	if errors.Is(err, agentservice.ErrInvalidAgent) {
		return apiframework.UnprocessableEntity(err.Error())
	}
	return err
}

// Registers a new agent.
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agent, err := apiframework.Decode[agentservice.Agent](r) // @request agentservice.Agent
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.CreateOperation)
		return
	}

	created, err := h.service.Create(ctx, agent)
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.CreateOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusCreated, created) // @response agentservice.Agent
}

// Lists agents in speaking order.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.List(r.Context())
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.ListOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, agents) // @response []agentservice.Agent
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id := apiframework.GetPathParam(r, "id", "The agent ID.")
	agent, err := h.service.Get(r.Context(), id)
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, agent) // @response agentservice.Agent
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := apiframework.GetPathParam(r, "id", "The agent ID.")
	agent, err := apiframework.Decode[agentservice.Agent](r) // @request agentservice.Agent
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.UpdateOperation)
		return
	}
	agent.ID = id

	updated, err := h.service.Update(ctx, agent)
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.UpdateOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, updated) // @response agentservice.Agent
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	id := apiframework.GetPathParam(r, "id", "The agent ID.")
	if err := h.service.Delete(r.Context(), id); err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.DeleteOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, map[string]string{"deleted": id})
}
