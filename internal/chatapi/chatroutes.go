package chatapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/contenox/coffeehouse/agentservice"
	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/roundservice"
)

func AddChatRoutes(mux *http.ServeMux, round roundservice.Service, store conversationstore.Store) {
	h := &handler{round: round, store: store}

	mux.HandleFunc("POST /send", h.send)
	mux.HandleFunc("GET /messages", h.messages)
	mux.HandleFunc("DELETE /messages", h.clearMessages)
	mux.HandleFunc("GET /agents/{id}/context", h.agentContext)
	mux.HandleFunc("GET /buckets", h.buckets)
	mux.HandleFunc("GET /mode", h.mode)
	mux.HandleFunc("POST /mode", h.switchMode)
	mux.HandleFunc("GET /state", h.state)
	mux.HandleFunc("POST /autochat/start", h.startAutoChat)
	mux.HandleFunc("POST /autochat/stop", h.stopAutoChat)
	mux.HandleFunc("GET /autochat", h.autoChatStatus)
}

type handler struct {
	round roundservice.Service
	store conversationstore.Store
}

func mapErr(err error) error {
	if errors.Is(err, agentservice.ErrAgentNotFound) || errors.Is(err, conversationstore.ErrBucketNotFound) {
		return apiframework.NotFound(err.Error())
	}
	if errors.Is(err, roundservice.ErrAutoChatRunning) || errors.Is(err, roundservice.ErrAutoChatNotRunning) {
		return apiframework.Conflict(err.Error())
	}
	if errors.Is(err, conversationstore.ErrEmptyContent) ||
		errors.Is(err, roundservice.ErrNoAgents) ||
		errors.Is(err, roundservice.ErrInvalidInterval) {
		return apiframework.UnprocessableEntity(err.Error())
	}
	return err
}

// SendRequest is a user message. Recipient is "everyone" for the group,
// an agent ID for a private word, or empty to follow the current mode.
type SendRequest struct {
	Recipient string `json:"recipient" example:"everyone"`
	Content   string `json:"content" example:"hi all"`
}

type SendResponse struct {
	Replies []roundservice.Reply `json:"replies"`
}

// Commits the user message and runs one chat round.
func (h *handler) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := apiframework.Decode[SendRequest](r) // @request chatapi.SendRequest
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.CreateOperation)
		return
	}

	replies, err := h.round.Send(ctx, req.Recipient, req.Content)
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.CreateOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, SendResponse{Replies: replies}) // @response chatapi.SendResponse
}

// Lists the messages of one bucket, defaulting to the current mode's.
func (h *handler) messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := apiframework.GetQueryParam(r, "bucket", "", "The bucket to read. Defaults to the current mode.")

	var msgs []conversationstore.Message
	var err error
	if bucket == "" {
		msgs, err = h.store.CurrentMessages(ctx)
	} else {
		msgs, err = h.store.MessagesIn(ctx, bucket)
	}
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.ListOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, msgs) // @response []conversationstore.Message
}

// Clears one bucket, or the whole conversation when no bucket is given.
func (h *handler) clearMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := apiframework.GetQueryParam(r, "bucket", "", "The bucket to clear. Clears everything when omitted.")

	var err error
	if bucket == "" {
		err = h.store.ClearAll(ctx)
	} else {
		err = h.store.ClearBucket(ctx, bucket)
	}
	if err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.DeleteOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, map[string]string{"cleared": "ok"})
}

// Returns everything one agent can see, for debugging prompts.
func (h *handler) agentContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := apiframework.GetPathParam(r, "id", "The agent whose visible context to return.")

	msgs, err := h.store.MessagesForAgent(ctx, id)
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, msgs) // @response []conversationstore.Message
}

func (h *handler) buckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.store.Buckets(r.Context())
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.ListOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, buckets)
}

type modeResponse struct {
	Mode string `json:"mode" example:"group"`
}

func (h *handler) mode(w http.ResponseWriter, r *http.Request) {
	mode, err := h.store.CurrentMode(r.Context())
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, modeResponse{Mode: mode})
}

func (h *handler) switchMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := apiframework.Decode[modeResponse](r) // @request chatapi.modeResponse
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.UpdateOperation)
		return
	}
	if err := h.store.SwitchMode(ctx, req.Mode); err != nil {
		_ = apiframework.Error(w, r, err, apiframework.UpdateOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, modeResponse{Mode: req.Mode})
}

// Exports the full conversation state.
func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.Export(r.Context())
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, state) // @response conversationstore.State
}

// AutoChatRequest configures the agents-only loop.
type AutoChatRequest struct {
	IntervalMS int `json:"interval_ms" example:"2000"`
	RoundLimit int `json:"round_limit" example:"5"`
}

func (h *handler) startAutoChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := apiframework.Decode[AutoChatRequest](r) // @request chatapi.AutoChatRequest
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.CreateOperation)
		return
	}

	if err := h.round.StartAutoChat(ctx, roundservice.AutoChatConfig{
		Interval:   time.Duration(req.IntervalMS) * time.Millisecond,
		RoundLimit: req.RoundLimit,
	}); err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.CreateOperation)
		return
	}

	status, err := h.round.AutoChatStatus(ctx)
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, status) // @response roundservice.Status
}

func (h *handler) stopAutoChat(w http.ResponseWriter, r *http.Request) {
	if err := h.round.StopAutoChat(r.Context()); err != nil {
		_ = apiframework.Error(w, r, mapErr(err), apiframework.UpdateOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, map[string]string{"autochat": "stopped"})
}

func (h *handler) autoChatStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.round.AutoChatStatus(r.Context())
	if err != nil {
		_ = apiframework.Error(w, r, err, apiframework.GetOperation)
		return
	}
	_ = apiframework.Encode(w, r, http.StatusOK, status) // @response roundservice.Status
}
