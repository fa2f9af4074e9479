package coordinator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"deliveryFieldOps/internal/channel"
)

const maxPollBatch = 64

type pollSession struct {
	client   *client
	lastSeen time.Time
}

type pollRegistry struct {
	mu       sync.Mutex
	sessions map[string]*pollSession
}

func newPollRegistry() *pollRegistry {
	return &pollRegistry{sessions: make(map[string]*pollSession)}
}

func (p *pollRegistry) add(c *client) {
	p.mu.Lock()
	p.sessions[c.id] = &pollSession{client: c, lastSeen: time.Now()}
	p.mu.Unlock()
}

// get returns the live session for sid and marks it seen. Closed sessions are
// left for expire, which also takes them out of the hub.
func (p *pollRegistry) get(sid string) (*client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.sessions[sid]
	if !ok {
		return nil, false
	}
	if ps.client.closed() {
		return nil, false
	}
	ps.lastSeen = time.Now()
	return ps.client, true
}

func (p *pollRegistry) remove(sid string) (*client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ps, ok := p.sessions[sid]
	if ok {
		delete(p.sessions, sid)
		return ps.client, true
	}
	return nil, false
}

// expire drops sessions not seen since cutoff and returns their clients.
func (p *pollRegistry) expire(cutoff time.Time) []*client {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*client
	for sid, ps := range p.sessions {
		if ps.client.closed() || ps.lastSeen.Before(cutoff) {
			delete(p.sessions, sid)
			out = append(out, ps.client)
		}
	}
	return out
}

func (s *Server) pollOpen(w http.ResponseWriter, r *http.Request) {
	for _, stale := range s.polls.expire(time.Now().Add(-2 * s.pollHold)) {
		s.hub.remove(stale)
	}
	c := newClient(channel.TransportPolling)
	s.hub.add(c)
	s.polls.add(c)
	s.log.Info("client connected", "client", c.id, "transport", c.transport, "platform", r.URL.Query().Get("platform"))
	writeJSON(w, http.StatusOK, channel.PollSession{SID: c.id})
}

func (s *Server) pollSend(w http.ResponseWriter, r *http.Request) {
	c, ok := s.polls.get(r.URL.Query().Get("sid"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	var env channel.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize)).Decode(&env); err != nil {
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}
	s.handle(r.Context(), c, env)
	w.WriteHeader(http.StatusNoContent)
}

// pollRecv holds the request until something is queued for the client or the
// hold time passes, then answers with everything queued so far.
func (s *Server) pollRecv(w http.ResponseWriter, r *http.Request) {
	c, ok := s.polls.get(r.URL.Query().Get("sid"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	timer := time.NewTimer(s.pollHold)
	defer timer.Stop()

	batch := []channel.Envelope{}
	select {
	case env := <-c.send:
		batch = append(batch, env)
	case <-c.done:
		s.polls.remove(c.id)
		s.hub.remove(c)
		http.Error(w, "session closed", http.StatusGone)
		return
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
drain:
	for len(batch) < maxPollBatch {
		select {
		case env := <-c.send:
			batch = append(batch, env)
		default:
			break drain
		}
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) pollClose(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.polls.remove(r.URL.Query().Get("sid")); ok {
		s.hub.remove(c)
		s.log.Info("client disconnected", "client", c.id, "driver", c.driverName())
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
