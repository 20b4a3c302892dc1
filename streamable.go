package lexmcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// StreamableServer implements the stateless streamable HTTP transport. Each POST
// carries one JSON-RPC message or a batch; requests are fanned out concurrently and
// their replies streamed back as server-sent events in completion order, correlated
// by request identifier. Session state between calls lives in the injected
// SessionStore and is carried by the Mcp-Session-Id header.
//
// The handlers returned by HandlePost, HandleGet, and HandleDelete are
// framework-agnostic and can be mounted on any HTTP router.
type StreamableServer struct {
	dispatcher *Dispatcher
	store      *SessionStore
	logger     *slog.Logger
}

// StreamableServerOption represents the options for the StreamableServer.
type StreamableServerOption func(*StreamableServer)

// NewStreamableServer creates a streamable HTTP transport around the given dispatcher
// and session store.
func NewStreamableServer(dispatcher *Dispatcher, store *SessionStore, options ...StreamableServerOption) *StreamableServer {
	s := &StreamableServer{
		dispatcher: dispatcher,
		store:      store,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// WithStreamableServerLogger sets the logger for the transport.
func WithStreamableServerLogger(logger *slog.Logger) StreamableServerOption {
	return func(s *StreamableServer) {
		s.logger = logger.With(
			slog.String("component", "streamable"),
		)
	}
}

// HandlePost returns an http.Handler processing JSON-RPC batches. Notifications are
// applied synchronously against the header session, inbound responses are logged, and
// requests are dispatched concurrently onto an event stream. A batch with zero
// requests is acknowledged with 202 and no body.
func (s *StreamableServer) HandlePost() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acceptable(r) {
			s.writeError(w, http.StatusNotAcceptable,
				"Accept must include application/json or text/event-stream")
			return
		}
		if !jsonBody(r) {
			s.writeError(w, http.StatusUnsupportedMediaType,
				"Content-Type must be application/json")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		batch, err := DecodeBatch(body)
		if err != nil {
			s.logger.Warn("rejecting malformed batch", slog.String("err", err.Error()))
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(batch) == 0 {
			s.writeError(w, http.StatusBadRequest, "empty batch")
			return
		}

		requests, notifications, responses := Partition(batch)

		// This server never issues requests to the client, so inbound responses are
		// only ever echoes from misbehaving or advanced clients.
		for _, msg := range responses {
			s.logger.Warn("ignoring inbound response message",
				slog.String("id", string(msg.ID)),
			)
		}

		if len(notifications) > 0 {
			// There is no handshake-as-notification, so notifications always require
			// an existing session.
			sess, status, errMsg := s.resolveSession(r)
			if status != 0 {
				s.writeError(w, status, errMsg)
				return
			}
			for _, msg := range notifications {
				s.dispatcher.HandleNotification(&sess, msg)
			}
		}

		if len(requests) == 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		handshakes := 0
		for _, msg := range requests {
			if IsInitialize(msg) {
				handshakes++
			}
		}
		if handshakes > 0 {
			if len(requests) > 1 {
				s.writeError(w, http.StatusBadRequest,
					"initialize must be the only request in a batch")
				return
			}
			s.streamHandshake(w, r, requests[0])
			return
		}

		// Non-handshake requests require a live session resolved up front; the batch
		// fails before any request executes if it does not resolve. The session is a
		// snapshot: expiry during concurrent execution does not abort siblings.
		sess, status, errMsg := s.resolveSession(r)
		if status != 0 {
			s.writeError(w, status, errMsg)
			return
		}
		s.store.Touch(sess.ID)

		s.streamRequests(w, r, sess, requests)
	})
}

// HandleDelete returns an http.Handler terminating the session named by the
// Mcp-Session-Id header.
func (s *StreamableServer) HandleDelete() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionIDHeader)
		if id == "" {
			s.writeError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
			return
		}
		if !s.store.Delete(id) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Info("session terminated", slog.String("sessionID", id))
		w.WriteHeader(http.StatusNoContent)
	})
}

// HandleGet returns an http.Handler rejecting stream initiation: this server never
// originates requests to the client, so there is nothing to push.
func (s *StreamableServer) HandleGet() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", "POST, DELETE")
		s.writeError(w, http.StatusMethodNotAllowed,
			"server-initiated streams are not supported")
	})
}

// HandleHealth returns a read-only liveness endpoint reporting the live session count.
func (s *StreamableServer) HandleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": s.store.Len(),
		})
	})
}

// HandleMetadata returns a read-only endpoint describing the server identity, the
// supported protocol versions, and the tool enumeration.
func (s *StreamableServer) HandleMetadata() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"server":           s.dispatcher.ServerInfo(),
			"protocolVersions": SupportedProtocolVersions,
			"tools":            s.dispatcher.Tools(),
		})
	})
}

// resolveSession loads the session named by the request header. It returns a zero
// status on success; otherwise the HTTP status and message the caller should fail with.
func (s *StreamableServer) resolveSession(r *http.Request) (Session, int, string) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		return Session{}, http.StatusBadRequest, "missing Mcp-Session-Id header"
	}
	sess, err := s.store.Load(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, http.StatusNotFound, "session not found"
		}
		return Session{}, http.StatusInternalServerError, "failed to load session"
	}
	return sess, 0, ""
}

// streamHandshake dispatches the sole handshake request before the stream opens, so
// the new session identifier can ride on the response headers.
func (s *StreamableServer) streamHandshake(w http.ResponseWriter, r *http.Request, msg JSONRPCMessage) {
	reply, created := s.dispatcher.Dispatch(r.Context(), nil, msg)
	if created != nil {
		w.Header().Set(SessionIDHeader, created.ID)
	}

	sseSess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Error("failed to upgrade stream", slog.String("err", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to open event stream")
		return
	}
	s.sendFrame(sseSess, reply)
}

// streamRequests fans the batch out concurrently and emits one frame per request in
// completion order. The request identifier inside each frame is what lets the caller
// correlate, not position. The stream closes once every request has been framed.
func (s *StreamableServer) streamRequests(w http.ResponseWriter, r *http.Request, sess Session, requests []JSONRPCMessage) {
	sseSess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Error("failed to upgrade stream", slog.String("err", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "failed to open event stream")
		return
	}

	frames := make(chan JSONRPCMessage)
	var wg sync.WaitGroup
	for _, msg := range requests {
		wg.Add(1)
		go func(msg JSONRPCMessage) {
			defer wg.Done()
			reply, _ := s.dispatcher.Dispatch(r.Context(), &sess, msg)
			select {
			case frames <- reply:
			case <-r.Context().Done():
			}
		}(msg)
	}
	go func() {
		wg.Wait()
		close(frames)
	}()

	for frame := range frames {
		s.sendFrame(sseSess, frame)
	}
}

func (s *StreamableServer) sendFrame(sseSess *sse.Session, msg JSONRPCMessage) {
	msgBs, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal frame", slog.String("err", err.Error()))
		return
	}

	sseMsg := &sse.Message{
		Type: sse.Type("message"),
	}
	sseMsg.AppendData(string(msgBs))

	if err := sseSess.Send(sseMsg); err != nil {
		s.logger.Warn("failed to send frame", slog.String("err", err.Error()))
		return
	}
	if err := sseSess.Flush(); err != nil {
		s.logger.Warn("failed to flush frame", slog.String("err", err.Error()))
	}
}

func (s *StreamableServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *StreamableServer) writeJSON(w http.ResponseWriter, status int, body any) {
	bs, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to marshal response body", slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bs)
	_, _ = fmt.Fprintln(w)
}

// acceptable reports whether the caller allows at least one of the representations
// this transport can produce. An absent Accept header allows anything.
func acceptable(r *http.Request) bool {
	values := r.Header.Values("Accept")
	if len(values) == 0 {
		return true
	}
	for _, part := range strings.Split(strings.Join(values, ","), ",") {
		mediaRange, _, _ := strings.Cut(part, ";")
		switch strings.TrimSpace(mediaRange) {
		case "application/json", "text/event-stream", "*/*", "application/*", "text/*":
			return true
		}
	}
	return false
}

func jsonBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json"
}
