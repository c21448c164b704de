package chatapi

import (
	"fmt"
	"net/http"

	"github.com/contenox/coffeehouse/apiframework"
	"github.com/contenox/coffeehouse/conversationstore"
	"github.com/contenox/coffeehouse/libbus"
	"github.com/contenox/coffeehouse/roundservice"
)

// AddEventRoutes mounts the SSE stream. allowOrigin is the origin the
// browser UI is served from; empty allows any origin.
func AddEventRoutes(mux *http.ServeMux, ps libbus.Messenger, allowOrigin string) {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	h := &eventHandler{ps: ps, allowOrigin: allowOrigin}
	mux.HandleFunc("GET /events", h.events)
}

type eventHandler struct {
	ps          libbus.Messenger
	allowOrigin string
}

// Streams bus events to the browser as Server-Sent Events.
//
// Each event carries its bus subject as the SSE event name:
//
// event: coffeehouse.message.added
// data: {"bucket":"group","message":{...}}
//
// The stream stays open until the client disconnects.
func (h *eventHandler) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjects := []string{
		conversationstore.SubjectMessageAdded,
		roundservice.SubjectAgentError,
		roundservice.SubjectAutoChatDone,
	}

	type busEvent struct {
		subject string
		data    []byte
	}
	events := make(chan busEvent, 64)

	for _, subject := range subjects {
		ch := make(chan []byte, 64)
		sub, err := h.ps.Stream(ctx, subject, ch)
		if err != nil {
			_ = apiframework.Error(w, r, err, apiframework.GetOperation)
			return
		}
		defer sub.Unsubscribe()

		go func(subject string, ch <-chan []byte) {
			for {
				select {
				case <-ctx.Done():
					return
				case data, ok := <-ch:
					if !ok {
						return
					}
					select {
					case events <- busEvent{subject: subject, data: data}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(subject, ch)
	}

	// Set headers for Server-Sent Events (SSE).
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", h.allowOrigin)

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = apiframework.Error(w, r, fmt.Errorf("streaming unsupported"), apiframework.GetOperation)
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.subject, ev.data)
			flusher.Flush()
		}
	}
}
