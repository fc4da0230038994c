package plugin

import (
	"context"
	"errors"
	"reflect"

	"modlog/pkg/logapi"
)

// Base is a small helper to make writing plugins faster.
// Typical usage:
//
//	type Plugin struct { plugin.Base }
//	func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error { p.InitBase(deps); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type Base struct {
	Log  logapi.Logger
	Deps Deps

	ctx    context.Context
	cancel context.CancelFunc
}

// InitBase wires deps + logger.
func (b *Base) InitBase(deps Deps) {
	b.Deps = deps
	b.Log = deps.Logger
	if b.Log == nil {
		b.Log = logapi.Nop("")
	}
}

// StartBase derives the plugin runtime context from ctx.
func (b *Base) StartBase(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
}

// StopBase cancels the runtime context.
func (b *Base) StopBase(context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Context returns the plugin runtime context (canceled on stop).
func (b *Base) Context() context.Context { return b.ctx }

// Logger returns a custom logger created from plugin code. It is attributed
// to the calling plugin through its call stack.
func (b *Base) Logger(name string) logapi.Logger {
	if b.Deps.Factory == nil {
		return logapi.GetLogger(name)
	}
	return b.Deps.Factory.GetLogger(name)
}

// Health implements a trivial health check for any plugin embedding Base.
func (b *Base) Health(context.Context) (string, error) {
	if b == nil {
		return "nil", errors.New("plugin base is nil")
	}
	if b.ctx == nil {
		return "not_started", nil
	}
	select {
	case <-b.ctx.Done():
		return "stopped", b.ctx.Err()
	default:
	}
	return "ok", nil
}

// DispatchClasses lists helper types that forward logger requests for plugin
// code and must be skipped when attributing by call stack.
func DispatchClasses() []string {
	return []string{logapi.TypeName(reflect.TypeOf(Base{}))}
}
