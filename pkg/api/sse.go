package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/dispatch"
)

// sseStream writes Server-Sent Events.
type sseStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// newSSEStream sets the SSE headers and lifts the write deadline, since
// streams outlive the server write timeout.
func newSSEStream(w http.ResponseWriter) *sseStream {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Time{})
	return &sseStream{w: w, rc: rc}
}

// send writes one event. A nil data writes the event line only.
func (s *sseStream) send(event string, data any) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.w, "data: %s\n", b)
	}
	fmt.Fprint(s.w, "\n")
	return s.rc.Flush()
}

func (s *sseStream) fail(err *apiError) {
	s.send("error", err.response())
}

// intParam parses an integer query parameter. Empty means def.
func intParam(r *http.Request, key string, def int) (int, *apiError) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("INVALID_PARAMETER", fmt.Sprintf("%s: %v", key, err))
	}
	return n, nil
}

// RolloutSSE handles GET /api/rollout/stream?position=...&agent=...&trials=...&truncate=...
// It sends "progress" events, then "result" and "done", or "error".
func (h *Handlers) RolloutSSE(w http.ResponseWriter, r *http.Request) {
	s := newSSEStream(w)

	req := RolloutRequest{Position: r.URL.Query().Get("position"), Agent: r.URL.Query().Get("agent")}
	var aerr *apiError
	for _, p := range []struct {
		key string
		v   *int
	}{{"trials", &req.Trials}, {"truncate", &req.Truncate}, {"workers", &req.Workers}} {
		if *p.v, aerr = intParam(r, p.key, 0); aerr != nil {
			s.fail(aerr)
			return
		}
	}

	resp, aerr := h.rollout(r.Context(), req, func(p dispatch.RolloutProgress) {
		s.send("progress", p)
	})
	if aerr != nil {
		s.fail(aerr)
		return
	}
	s.send("result", resp)
	s.send("done", nil)
}

// TrainSSE handles GET /api/train/{id}/stream. It replays the events of the
// job so far, follows it until it ends and closes with a "done" event
// carrying the job status.
func (h *Handlers) TrainSSE(w http.ResponseWriter, r *http.Request) {
	j, ok := h.job(w, r)
	if !ok {
		return
	}
	s := newSSEStream(w)
	past, ch := j.subscribe()
	if ch != nil {
		defer j.unsubscribe(ch)
	}

	for _, e := range past {
		if err := s.send("event", e); err != nil {
			return
		}
	}
	for ch != nil {
		select {
		case e, open := <-ch:
			if !open {
				ch = nil
				break
			}
			if err := s.send("event", e); err != nil {
				log.Debug().Err(err).Str("job", j.id).Msg("training stream closed")
				return
			}
		case <-r.Context().Done():
			return
		}
	}
	s.send("done", j.status(false))
}
