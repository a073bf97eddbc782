// Package incremental skips work whose configuration, inputs and outputs are
// unchanged since the last successful run.
package incremental

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Cache status values recorded on spans.
const (
	StatusUpToDate         = "up-to-date"
	StatusRequiresBuilding = "requires-building"
)

// Inputs describes what a cached block depends on.
type Inputs struct {
	// Configuration holds arbitrary settings that affect the block's result.
	Configuration map[string]string
	// Files are read by the block. Their order is significant.
	Files []string
	// Force runs the block even when the cache is up to date.
	Force bool
}

// Block is the work guarded by the cache.
type Block func(ctx context.Context) (domain.ExecutionResult, error)

// Option configures a Cache.
type Option func(*Cache)

// WithTracer records a span per cache call.
func WithTracer(tracer ports.Tracer) Option {
	return func(c *Cache) {
		c.tracer = tracer
	}
}

// WithLogger logs cache decisions at debug level.
func WithLogger(logger ports.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache runs blocks at most once per change of their inputs. It is safe for
// concurrent use; calls for the same key are serialised, in this process by
// a mutex and across processes by the store's lock.
type Cache struct {
	store       ports.StateStore
	fp          ports.Fingerprinter
	codeVersion string
	tracer      ports.Tracer
	logger      ports.Logger

	locks sync.Map // map[string]*sync.Mutex
}

// New creates a Cache. Entries written with a different codeVersion are
// never reused.
func New(store ports.StateStore, fp ports.Fingerprinter, codeVersion string, opts ...Option) *Cache {
	c := &Cache{
		store:       store,
		fp:          fp,
		codeVersion: codeVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute returns the stored result for key when the fingerprint of inputs,
// the code version and the recorded outputs are unchanged. Otherwise it runs
// block, records its outputs and reports how they changed.
func (c *Cache) Execute(ctx context.Context, key string, inputs Inputs, block Block) (domain.IncrementalResult, error) {
	ctx, span := c.startSpan(ctx, key)
	defer span.End()
	span.SetAttribute("kiln.cache.force", inputs.Force)

	res, err := c.execute(ctx, key, inputs, block, span)
	if err != nil {
		span.RecordError(err)
		return domain.IncrementalResult{}, err
	}

	if res.CacheHit {
		span.SetAttribute("kiln.cache.status", StatusUpToDate)
	} else {
		span.SetAttribute("kiln.cache.status", StatusRequiresBuilding)
	}
	span.SetAttribute("kiln.cache.outputs", res.OutputFiles)
	return res, nil
}

func (c *Cache) execute(
	ctx context.Context,
	key string,
	inputs Inputs,
	block Block,
	span ports.Span,
) (domain.IncrementalResult, error) {
	fingerprint, err := c.fp.Fingerprint(inputs.Configuration, inputs.Files)
	if err != nil {
		return domain.IncrementalResult{}, err
	}
	span.SetAttribute("kiln.cache.fingerprint", string(fingerprint))

	if !inputs.Force {
		res, _, err := c.check(key, fingerprint)
		if err != nil || res.CacheHit {
			return res, err
		}
	}

	mu := c.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	unlock, err := c.store.Lock(ctx, key)
	if err != nil {
		return domain.IncrementalResult{}, err
	}
	defer func() { _ = unlock() }()

	// Another caller may have finished the work while we waited.
	res, previous, err := c.check(key, fingerprint)
	if err != nil {
		return domain.IncrementalResult{}, err
	}
	if res.CacheHit && !inputs.Force {
		return res, nil
	}

	return c.build(ctx, key, fingerprint, inputs, previous, block)
}

func (c *Cache) build(
	ctx context.Context,
	key string,
	fingerprint domain.Fingerprint,
	inputs Inputs,
	previous *domain.CacheEntry,
	block Block,
) (domain.IncrementalResult, error) {
	inputStates, err := c.fp.Snapshot(inputs.Files, nil, false)
	if err != nil {
		return domain.IncrementalResult{}, err
	}

	c.debugf("cache: running %s", key)
	result, err := block(ctx)
	if err != nil {
		return domain.IncrementalResult{}, err
	}

	outputStates, err := c.fp.Snapshot(result.OutputFiles, result.ExcludedOutputFiles, true)
	if err != nil {
		return domain.IncrementalResult{}, err
	}

	var previousStates domain.FileStates
	if previous != nil {
		previousStates = previous.OutputFilesState
	}
	changes := domain.DiffFileStates(previousStates, outputStates)

	entry := &domain.CacheEntry{
		FormatVersion:       domain.StateFormatVersion,
		Key:                 key,
		CodeVersion:         c.codeVersion,
		Configuration:       inputs.Configuration,
		InputFiles:          inputs.Files,
		InputFilesState:     inputStates,
		Fingerprint:         fingerprint,
		OutputFiles:         result.OutputFiles,
		OutputFilesState:    outputStates,
		OutputValues:        result.OutputValues,
		ExcludedOutputFiles: result.ExcludedOutputFiles,
	}
	if err := c.store.Save(entry); err != nil {
		return domain.IncrementalResult{}, err
	}
	if err := c.verify(entry); err != nil {
		return domain.IncrementalResult{}, err
	}

	return domain.IncrementalResult{ExecutionResult: result, Changes: changes}, nil
}

// check loads the entry for key and reports a hit when it is still valid.
// The loaded entry is returned either way.
func (c *Cache) check(key string, fingerprint domain.Fingerprint) (domain.IncrementalResult, *domain.CacheEntry, error) {
	entry, err := c.store.Load(key)
	if err != nil || entry == nil {
		return domain.IncrementalResult{}, entry, err
	}

	switch {
	case entry.FormatVersion != domain.StateFormatVersion:
		c.debugf("cache: %s has state format %d", key, entry.FormatVersion)
		return domain.IncrementalResult{}, entry, nil
	case entry.CodeVersion != c.codeVersion:
		c.debugf("cache: code version of %s changed", key)
		return domain.IncrementalResult{}, entry, nil
	case entry.Fingerprint != fingerprint:
		c.debugf("cache: inputs of %s changed", key)
		return domain.IncrementalResult{}, entry, nil
	}

	current, err := c.fp.Snapshot(entry.OutputFiles, entry.ExcludedOutputFiles, false)
	if err != nil {
		return domain.IncrementalResult{}, entry, err
	}
	if !current.Equal(entry.OutputFilesState) {
		c.debugf("cache: outputs of %s changed", key)
		return domain.IncrementalResult{}, entry, nil
	}

	return domain.IncrementalResult{
		ExecutionResult: domain.ExecutionResult{
			OutputFiles:         entry.OutputFiles,
			OutputValues:        entry.OutputValues,
			ExcludedOutputFiles: entry.ExcludedOutputFiles,
		},
		CacheHit: true,
	}, entry, nil
}

// verify reads the entry back and drops it if it does not match what was written.
func (c *Cache) verify(written *domain.CacheEntry) error {
	stored, err := c.store.Load(written.Key)
	if err != nil {
		return err
	}
	if stored != nil &&
		slices.Equal(stored.OutputFiles, written.OutputFiles) &&
		maps.Equal(stored.OutputValues, written.OutputValues) &&
		stored.OutputFilesState.Equal(written.OutputFilesState) {
		return nil
	}

	if err := c.store.Delete(written.Key); err != nil {
		return err
	}
	return zerr.With(zerr.Wrap(domain.ErrInconsistentState, written.Key), "key", written.Key)
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (c *Cache) startSpan(ctx context.Context, key string) (context.Context, ports.Span) {
	if c.tracer == nil {
		return ctx, discardSpan{}
	}
	return c.tracer.Start(ctx, "inc "+key)
}

func (c *Cache) debugf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(fmt.Sprintf(format, args...))
	}
}

type discardSpan struct{}

func (discardSpan) Write(p []byte) (int, error) { return len(p), nil }
func (discardSpan) End() {}
func (discardSpan) RecordError(error) {}
func (discardSpan) SetAttribute(_ string, _ any) {}
