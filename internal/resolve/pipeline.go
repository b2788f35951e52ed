package resolve

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"composer/internal/domain"
	"composer/internal/observability"
	"composer/internal/registry"
)

// Request asks for one target to be resolved. Target is a block id or
// domain.RootID; Type is ignored for the root.
type Request struct {
	Target string
	Type   string
	Props  domain.Props
}

// Result is a completed, current resolution.
type Result struct {
	Target string
	Fields registry.Fields
	Props  domain.Props
	// PropsChanged is true when the data resolver returned props that differ
	// from the request.
	PropsChanged bool
	// Generation identifies the resolution; see Pipeline.Current.
	Generation uint64
}

// ApplyFunc installs a result. It is called at most once per resolution and
// only while the result is still the latest for its target.
type ApplyFunc func(Result)

// LoadingFunc is told the in-flight count of a target whenever it changes.
type LoadingFunc func(target string, inFlight int)

type Options struct {
	Logger    zerolog.Logger
	Apply     ApplyFunc
	OnLoading LoadingFunc
}

type targetState struct {
	generation uint64
	inFlight   int
	resolved   bool
	lastProps  domain.Props
	fields     registry.Fields
	lastErr    error
}

// Pipeline runs component resolvers off the dispatch path. Each target keeps
// a generation counter: a result is applied only if no newer resolution of
// the same target started while it ran.
type Pipeline struct {
	reg       *registry.Registry
	log       zerolog.Logger
	apply     ApplyFunc
	onLoading LoadingFunc

	mu      sync.Mutex
	targets map[string]*targetState
	// seq numbers resolutions across all targets so a generation is never
	// reused after a target is forgotten and resolved again.
	seq uint64

	// applyMu serializes the generation check with the apply call so an
	// older result can never land after a newer one.
	applyMu sync.Mutex
	wg      sync.WaitGroup
}

func New(reg *registry.Registry, opts Options) *Pipeline {
	return &Pipeline{
		reg:       reg,
		log:       opts.Logger,
		apply:     opts.Apply,
		onLoading: opts.OnLoading,
		targets:   make(map[string]*targetState),
	}
}

// SetApply replaces the apply callback. Used to close the loop with the
// editor that owns the pipeline.
func (p *Pipeline) SetApply(fn ApplyFunc) {
	p.mu.Lock()
	p.apply = fn
	p.mu.Unlock()
}

// Resolvable reports whether req's target has any resolver.
func (p *Pipeline) Resolvable(req Request) bool {
	if req.Target == domain.RootID {
		return p.reg.Root().Resolvable()
	}
	c, ok := p.reg.Lookup(req.Type)
	return ok && c.Resolvable()
}

// Resolve starts a resolution and returns immediately. Targets without
// resolvers are ignored.
func (p *Pipeline) Resolve(ctx context.Context, req Request) {
	fields, data, static := p.resolvers(req)
	if fields == nil && data == nil {
		return
	}

	p.mu.Lock()
	ts := p.stateLocked(req.Target)
	p.seq++
	ts.generation = p.seq
	gen := ts.generation
	ts.inFlight++
	inFlight := ts.inFlight
	rc := registry.ResolveContext{
		Target:     req.Target,
		Changed:    changedProps(ts.lastProps, req.Props, ts.resolved),
		LastProps:  ts.lastProps,
		LastFields: ts.fields,
	}
	if !ts.resolved {
		rc.LastFields = static
	}
	p.mu.Unlock()
	p.notifyLoading(req.Target, inFlight)

	props := req.Props.Clone()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.finish(req.Target, ts)
		p.run(ctx, req.Target, ts, gen, props, rc, fields, data, static)
	}()
}

func (p *Pipeline) resolvers(req Request) (registry.ResolveFieldsFunc, registry.ResolveDataFunc, registry.Fields) {
	if req.Target == domain.RootID {
		root := p.reg.Root()
		return root.ResolveFields, root.ResolveData, root.Fields
	}
	c, ok := p.reg.Lookup(req.Type)
	if !ok {
		return nil, nil, nil
	}
	return c.ResolveFields, c.ResolveData, c.Fields
}

func (p *Pipeline) stateLocked(target string) *targetState {
	ts, ok := p.targets[target]
	if !ok {
		ts = &targetState{}
		p.targets[target] = ts
	}
	return ts
}

func (p *Pipeline) run(
	ctx context.Context,
	target string,
	ts *targetState,
	gen uint64,
	props domain.Props,
	rc registry.ResolveContext,
	resolveFields registry.ResolveFieldsFunc,
	resolveData registry.ResolveDataFunc,
	static registry.Fields,
) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "resolve.target",
		trace.WithAttributes(attribute.String("composer.target", target)))

	fields, out, err := p.call(ctx, props, rc, resolveFields, resolveData, static)
	if err != nil {
		p.mu.Lock()
		ts.lastErr = err
		p.mu.Unlock()
		p.log.Warn().Err(err).Str("target", target).Msg("field resolution failed, keeping last good state")
		observability.RecordResolution(observability.ResolutionFailed, time.Since(start))
		observability.EndSpan(span, err)
		return
	}

	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	if ts.generation != gen {
		p.mu.Unlock()
		p.log.Debug().Str("target", target).Uint64("generation", gen).Msg("discarding stale resolution")
		observability.RecordResolution(observability.ResolutionStale, time.Since(start))
		span.SetAttributes(attribute.Bool("composer.stale", true))
		observability.EndSpan(span, nil)
		return
	}
	ts.resolved = true
	ts.lastProps = out
	ts.fields = fields
	ts.lastErr = nil
	apply := p.apply
	p.mu.Unlock()

	if apply != nil {
		apply(Result{
			Target:       target,
			Fields:       fields,
			Props:        out,
			PropsChanged: !reflect.DeepEqual(map[string]any(props), map[string]any(out)),
			Generation:   gen,
		})
	}
	observability.RecordResolution(observability.ResolutionApplied, time.Since(start))
	observability.EndSpan(span, nil)
}

// call runs the resolvers, turning a panic into an error. Data is resolved
// first so the field resolver sees normalized props.
func (p *Pipeline) call(
	ctx context.Context,
	props domain.Props,
	rc registry.ResolveContext,
	resolveFields registry.ResolveFieldsFunc,
	resolveData registry.ResolveDataFunc,
	static registry.Fields,
) (fields registry.Fields, out domain.Props, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panic: %v", r)
		}
	}()

	out = props
	if resolveData != nil {
		out, err = resolveData(ctx, props.Clone(), rc)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve data: %w", err)
		}
		if out == nil {
			out = domain.Props{}
		}
	}
	fields = static
	if resolveFields != nil {
		fields, err = resolveFields(ctx, out.Clone(), rc)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve fields: %w", err)
		}
		if err := fields.Validate(); err != nil {
			return nil, nil, fmt.Errorf("resolve fields: %w", err)
		}
	}
	return fields, out, nil
}

func (p *Pipeline) finish(target string, ts *targetState) {
	p.mu.Lock()
	if ts.inFlight > 0 {
		ts.inFlight--
	}
	inFlight := ts.inFlight
	p.mu.Unlock()
	p.notifyLoading(target, inFlight)
}

func (p *Pipeline) notifyLoading(target string, inFlight int) {
	if p.onLoading != nil {
		p.onLoading(target, inFlight)
	}
}

// Loading reports whether any resolution of target is in flight.
func (p *Pipeline) Loading(target string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.targets[target]
	return ok && ts.inFlight > 0
}

// Fields returns the last successfully resolved schema of target.
func (p *Pipeline) Fields(target string) (registry.Fields, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.targets[target]
	if !ok || !ts.resolved {
		return nil, false
	}
	return ts.fields, true
}

// LastError returns the error of the most recent failed resolution of
// target, cleared by the next success.
func (p *Pipeline) LastError(target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts, ok := p.targets[target]; ok {
		return ts.lastErr
	}
	return nil
}

// Forget drops the bookkeeping of targets that no longer exist. In-flight
// resolutions of a forgotten target complete as stale.
func (p *Pipeline) Forget(targets ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range targets {
		if ts, ok := p.targets[t]; ok {
			p.seq++
			ts.generation = p.seq
			delete(p.targets, t)
		}
	}
}

// Current reports whether gen is the latest resolution started for target.
// Appliers that hold their own lock around Resolve call it under that lock
// to close the window between the pipeline's check and the apply.
func (p *Pipeline) Current(target string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.targets[target]
	return ok && ts.generation == gen
}

// Targets lists every target with bookkeeping.
func (p *Pipeline) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.targets))
	for t := range p.targets {
		out = append(out, t)
	}
	return out
}

// Wait blocks until every started resolution has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
