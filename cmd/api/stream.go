package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mindprint/internal/backend"
)

type statusEvent struct {
	Event  string                `json:"event"`
	Status *backend.ReportStatus `json:"status,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// statusStreamHandler streams report status over SSE until the report
// reaches a terminal state, polling tops out, or the client goes away.
func (app *application) statusStreamHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	testID := r.URL.Query().Get("testId")
	if sessionID == "" || testID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing sessionId or testId"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.internalServerError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan statusEvent, 8)
	done := make(chan struct{})

	handle := app.monitor.StartPolling(sessionID, testID,
		func(st *backend.ReportStatus) {
			select {
			case events <- statusEvent{Event: "update", Status: st}:
			default:
			}
		},
		func(st *backend.ReportStatus) {
			events <- statusEvent{Event: "complete", Status: st}
			close(done)
		},
		func(err error) {
			events <- statusEvent{Event: "error", Error: err.Error()}
			close(done)
		},
	)
	defer handle.Cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			// drain whatever the callbacks queued before closing
			for {
				select {
				case ev := <-events:
					writeSSE(w, ev)
				default:
					flusher.Flush()
					return
				}
			}
		case ev := <-events:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev statusEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data)
}
