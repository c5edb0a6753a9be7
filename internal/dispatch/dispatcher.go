package dispatch

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"mess-ordersync/internal/events"
	"mess-ordersync/internal/logger"
	"mess-ordersync/internal/metrics"
)

// Source delivers raw frames in arrival order. *channel.Handle is one.
type Source interface {
	OnFrame(fn func(events.Frame)) func()
}

type registration struct {
	name   events.Name
	handle func(json.RawMessage)
}

type route struct {
	detach   func()
	handlers map[events.Name]*registration
}

// Dispatcher routes frames of each source to at most one handler per
// event name.
type Dispatcher struct {
	log *zap.Logger

	mu     sync.Mutex
	routes map[Source]*route
}

func New(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = logger.Layer("dispatch")
	}
	return &Dispatcher{
		log:    log,
		routes: make(map[Source]*route),
	}
}

// Listen registers handler for kind on src, replacing any handler
// already registered for the same pair. Payloads that fail to decode or
// validate are logged and skipped. The returned func removes only this
// registration and may be called more than once.
func Listen[P events.Payload](d *Dispatcher, src Source, kind events.Kind[P], handler func(P)) func() {
	name := kind.Name()
	reg := &registration{
		name: name,
		handle: func(raw json.RawMessage) {
			payload, err := kind.Decode(raw)
			if err != nil {
				metrics.Default.EventsSkipped.Inc()
				d.log.Warn("skipping event with unexpected payload",
					zap.String("event", string(name)),
					zap.Error(err),
				)
				return
			}
			handler(payload)
			metrics.Default.EventsDelivered.Inc()
		},
	}

	d.mu.Lock()
	r, ok := d.routes[src]
	if !ok {
		r = &route{handlers: make(map[events.Name]*registration)}
		d.routes[src] = r
		r.detach = src.OnFrame(func(f events.Frame) { d.deliver(src, f) })
	}
	if _, replaced := r.handlers[name]; replaced {
		d.log.Debug("replacing event handler", zap.String("event", string(name)))
	}
	r.handlers[name] = reg
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.unregister(src, reg) })
	}
}

func (d *Dispatcher) unregister(src Source, reg *registration) {
	d.mu.Lock()
	r, ok := d.routes[src]
	if !ok || r.handlers[reg.name] != reg {
		d.mu.Unlock()
		return
	}
	delete(r.handlers, reg.name)

	var detach func()
	if len(r.handlers) == 0 {
		delete(d.routes, src)
		detach = r.detach
	}
	d.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (d *Dispatcher) deliver(src Source, f events.Frame) {
	d.mu.Lock()
	var reg *registration
	if r, ok := d.routes[src]; ok {
		reg = r.handlers[f.Event]
	}
	d.mu.Unlock()

	if reg == nil {
		d.log.Debug("no handler for event", zap.String("event", string(f.Event)))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			metrics.Default.HandlerPanics.Inc()
			d.log.Error("event handler panicked",
				zap.String("event", string(f.Event)),
				zap.Any("panic", rec),
			)
		}
	}()
	reg.handle(f.Data)
}

// Close removes every registration of every source.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	detach := make([]func(), 0, len(d.routes))
	for src, r := range d.routes {
		detach = append(detach, r.detach)
		delete(d.routes, src)
	}
	d.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}
