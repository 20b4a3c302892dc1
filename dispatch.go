package lexmcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
)

// Dispatcher routes a single JSON-RPC request to the correct protocol operation given
// an optional bound session. It carries no per-connection state of its own: the
// protocol state (unbound, bound-uninitialized, bound-initialized) lives entirely in
// the Session entity, since the streamable transport is stateless between calls.
type Dispatcher struct {
	info         Info
	instructions string
	registry     ToolRegistry
	store        *SessionStore
	logger       *slog.Logger
}

// DispatcherOption represents the options for the Dispatcher.
type DispatcherOption func(*Dispatcher)

// NewDispatcher creates a dispatcher serving the given identity, tool registry, and
// session store.
func NewDispatcher(info Info, registry ToolRegistry, store *SessionStore, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		info:     info,
		registry: registry,
		store:    store,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// WithDispatcherLogger sets the logger for the dispatcher.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger.With(
			slog.String("component", "dispatcher"),
		)
	}
}

// WithInstructions sets the instructions string advertised in the handshake result.
func WithInstructions(instructions string) DispatcherOption {
	return func(d *Dispatcher) {
		d.instructions = instructions
	}
}

// ServerInfo returns the identity advertised in the handshake.
func (d *Dispatcher) ServerInfo() Info { return d.info }

// Tools returns the registry enumeration.
func (d *Dispatcher) Tools() []Tool { return d.registry.List() }

// Dispatch executes one request against an optional bound session and returns the
// reply frame. When the request is the handshake, the freshly created session is
// returned alongside the reply so the transport can surface its identifier.
//
// Dispatch never propagates a failure: panics in handlers are caught at this boundary
// and converted to an internal-error frame, so one misbehaving request cannot abort
// its siblings or the stream.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, msg JSONRPCMessage) (reply JSONRPCMessage, created *Session) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in request handler",
				slog.String("method", msg.Method),
				slog.Any("panic", r),
			)
			reply = errorMessage(msg.ID, jsonRPCInternalErrorCode, errMsgInternalError, nil)
			created = nil
		}
	}()

	if msg.Method == MethodInitialize {
		return d.handleInitialize(msg)
	}

	// Every method except the handshake requires a previously created session. The
	// streamable transport enforces this at the batch level before dispatch begins;
	// this check covers the stdio transport and direct callers.
	if sess == nil {
		return errorMessage(msg.ID, jsonRPCInvalidRequestCode, errMsgInvalidRequest,
			map[string]any{"error": errMsgNoSession}), nil
	}
	d.store.Touch(sess.ID)

	switch msg.Method {
	case MethodPing:
		return resultMessage(msg.ID, struct{}{}), nil
	case MethodToolsList:
		return resultMessage(msg.ID, ListToolsResult{Tools: d.registry.List()}), nil
	case MethodToolsCall:
		return d.handleToolsCall(ctx, msg), nil
	default:
		d.logger.Warn("unknown method requested",
			slog.String("method", msg.Method),
			slog.String("sessionID", sess.ID),
		)
		return errorMessage(msg.ID, jsonRPCMethodNotFoundCode, errMsgMethodNotFound,
			map[string]any{"method": msg.Method}), nil
	}
}

func (d *Dispatcher) handleInitialize(msg JSONRPCMessage) (JSONRPCMessage, *Session) {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return errorMessage(msg.ID, jsonRPCInvalidParamsCode, errMsgInvalidParams,
				map[string]any{"error": err.Error()}), nil
		}
	}

	// Echo the requested protocol version when supported, otherwise fall back to the
	// latest revision this server speaks.
	version := params.ProtocolVersion
	if !slices.Contains(SupportedProtocolVersions, version) {
		version = LatestProtocolVersion
	}

	sess := d.store.Create()
	d.logger.Info("session initialized",
		slog.String("sessionID", sess.ID),
		slog.String("protocolVersion", version),
		slog.String("client", params.ClientInfo.Name),
	)

	return resultMessage(msg.ID, initializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo:   d.info,
		Instructions: d.instructions,
	}), &sess
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, msg JSONRPCMessage) JSONRPCMessage {
	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return errorMessage(msg.ID, jsonRPCInvalidParamsCode, errMsgInvalidParams,
			map[string]any{"error": err.Error()})
	}
	if params.Name == "" {
		return errorMessage(msg.ID, jsonRPCInvalidParamsCode, errMsgInvalidParams,
			map[string]any{"error": "tool name is required"})
	}

	// Tool-level failures are normal results carrying IsError, never protocol errors.
	result := d.registry.Call(ctx, params.Name, params.Arguments)
	return resultMessage(msg.ID, result)
}

// HandleNotification processes a fire-and-forget message against a bound session.
// Transports resolve the session before calling; notifications never produce replies.
func (d *Dispatcher) HandleNotification(sess *Session, msg JSONRPCMessage) {
	switch msg.Method {
	case methodNotificationsInitialized:
		d.store.MarkInitialized(sess.ID)
		d.logger.Debug("client acknowledged handshake", slog.String("sessionID", sess.ID))
	case methodNotificationsCancelled:
		// The notification taxonomy reserves a cancellation slot, but this layer does
		// not abort in-flight work; dispatched requests run to completion.
		var params notificationsCancelledParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			d.logger.Warn("malformed cancellation notification", slog.String("err", err.Error()))
			return
		}
		d.store.Touch(sess.ID)
		d.logger.Info("cancellation requested, request will run to completion",
			slog.String("sessionID", sess.ID),
			slog.String("requestID", string(params.RequestID)),
			slog.String("reason", params.Reason),
		)
	default:
		d.store.Touch(sess.ID)
		d.logger.Debug("unhandled notification",
			slog.String("sessionID", sess.ID),
			slog.String("method", msg.Method),
		)
	}
}
