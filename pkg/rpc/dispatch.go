package rpc

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kagent-dev/codemode/pkg/telemetry"
)

// NamespaceHandler answers one RPC method within a namespace (tools,
// skills, artifacts, deps). params is the decoded Request.Params map;
// implementations extract their own typed arguments from it.
type NamespaceHandler func(ctx context.Context, params map[string]any) (any, error)

// Dispatcher routes "namespace.operation" methods to registered handlers,
// per spec §4.7's closed method namespace. Unknown methods produce an
// error frame rather than panicking.
type Dispatcher struct {
	handlers map[string]NamespaceHandler
}

// NewDispatcher builds an empty dispatcher; use Register to wire methods.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]NamespaceHandler)}
}

// Register binds "namespace.operation" to handler. Panics on duplicate
// registration — a programmer error caught at wiring time, not runtime.
func (d *Dispatcher) Register(method string, handler NamespaceHandler) {
	if _, exists := d.handlers[method]; exists {
		panic("rpc: duplicate method registration: " + method)
	}
	d.handlers[method] = handler
}

// closedMethods is the full vocabulary of spec §4.7; Dispatch rejects any
// method outside it even if a handler were somehow registered under it.
var closedMethods = map[string]bool{
	"tools.call": true, "tools.list": true, "tools.search": true, "tools.list_recipes": true,
	"skills.invoke": true, "skills.search": true, "skills.list": true, "skills.get": true,
	"skills.create": true, "skills.delete": true,
	"artifacts.load": true, "artifacts.save": true, "artifacts.list": true,
	"artifacts.delete": true, "artifacts.exists": true, "artifacts.get": true,
	"deps.add": true, "deps.remove": true, "deps.list": true, "deps.sync": true,
}

// Dispatch executes req against the registered handlers and always
// returns a well-formed Response — errors are carried in the response's
// Error field, never returned as a Go error, since the caller's job is
// just to serialize and send the frame back.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	ctx, span := telemetry.Tracer.Start(ctx, "rpc.Dispatch")
	span.SetAttributes(attribute.String("rpc.method", req.Method), attribute.String("rpc.request_id", req.ID))
	defer span.End()

	if !closedMethods[req.Method] {
		span.SetStatus(codes.Error, "unknown method")
		return Fail(req.ID, ErrorPayload{
			Namespace: methodNamespace(req.Method),
			Operation: req.Method,
			Message:   fmt.Sprintf("unknown method: %s", req.Method),
			Type:      "UnknownMethod",
		})
	}

	handler, ok := d.handlers[req.Method]
	if !ok {
		span.SetStatus(codes.Error, "method not wired")
		return Fail(req.ID, ErrorPayload{
			Namespace: methodNamespace(req.Method),
			Operation: req.Method,
			Message:   fmt.Sprintf("method not wired: %s", req.Method),
			Type:      "NotImplemented",
		})
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Fail(req.ID, ErrorPayload{
			Namespace: methodNamespace(req.Method),
			Operation: req.Method,
			Message:   err.Error(),
			Type:      fmt.Sprintf("%T", err),
		})
	}
	return OK(req.ID, result)
}

func methodNamespace(method string) string {
	if i := strings.IndexByte(method, '.'); i >= 0 {
		return method[:i]
	}
	return method
}
