//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package runner drives compiled graphs for callers: it binds a graph to a
// configuration, bounds the number of steps of a run and retries runs that
// fail on external calls.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"
)

// ErrRecursionLimit is returned when a run reaches config.Config.RecursionLimit
// steps without completing.
var ErrRecursionLimit = errors.New("recursion limit reached")

// Runner runs one compiled graph.
type Runner interface {
	// Name returns the name of the graph.
	Name() string
	// Graph returns the compiled graph.
	Graph() *graph.Executable[*config.Config]
	// Run starts a run from input.
	Run(ctx context.Context, input graph.State, opts ...RunOption) (*graph.Result, error)
	// Resume continues a suspended or failed run.
	Resume(ctx context.Context, token *graph.ResumeToken, opts ...RunOption) (*graph.Result, error)
}

// Option is a function that configures a Runner.
type Option func(*Options)

// Options is the options for the Runner.
type Options struct {
	config    Config
	callbacks *graph.NodeCallbacks
}

// WithConfig sets the retry and timeout configuration.
func WithConfig(c Config) Option {
	return func(opts *Options) {
		opts.config = c
	}
}

// WithNodeCallbacks adds node callbacks to every run.
func WithNodeCallbacks(cb *graph.NodeCallbacks) Option {
	return func(opts *Options) {
		opts.callbacks = opts.callbacks.Merge(cb)
	}
}

// RunOption configures one Run or Resume call.
type RunOption func(*runOptions)

type runOptions struct {
	config *config.Config
	patch  graph.State
	runID  string
}

// WithRunConfig replaces the runner's configuration for one call.
func WithRunConfig(cfg *config.Config) RunOption {
	return func(o *runOptions) {
		o.config = cfg
	}
}

// WithStatePatch merges patch into the state before the first step.
func WithStatePatch(patch graph.State) RunOption {
	return func(o *runOptions) {
		o.patch = patch
	}
}

// WithRunID sets the run id.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// runner runs graphs.
type runner struct {
	exec      *graph.Executable[*config.Config]
	cfg       *config.Config
	config    Config
	callbacks *graph.NodeCallbacks
}

// NewRunner creates a new Runner for exec. cfg is used by calls that do not
// carry their own configuration.
func NewRunner(exec *graph.Executable[*config.Config], cfg *config.Config, opts ...Option) Runner {
	options := Options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&options)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &runner{
		exec:      exec,
		cfg:       cfg,
		config:    options.config,
		callbacks: options.callbacks,
	}
}

func (r *runner) Name() string { return r.exec.Name() }

func (r *runner) Graph() *graph.Executable[*config.Config] { return r.exec }

// Run runs the graph.
func (r *runner) Run(ctx context.Context, input graph.State, opts ...RunOption) (*graph.Result, error) {
	o := r.runOptions(opts)
	return r.drive(ctx, "run", o, func(ctx context.Context, gopts []graph.RunOption) (*graph.Result, error) {
		return r.exec.Run(ctx, input, o.config, gopts...)
	})
}

// Resume resumes the run bound to token.
func (r *runner) Resume(ctx context.Context, token *graph.ResumeToken, opts ...RunOption) (*graph.Result, error) {
	o := r.runOptions(opts)
	return r.drive(ctx, "resume", o, func(ctx context.Context, gopts []graph.RunOption) (*graph.Result, error) {
		return r.exec.Resume(ctx, token, o.config, gopts...)
	})
}

func (r *runner) runOptions(opts []RunOption) *runOptions {
	o := &runOptions{config: r.cfg}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// drive performs the first call, then resumes from the failure token while
// the run fails on an external call and retries remain.
func (r *runner) drive(
	ctx context.Context,
	op string,
	o *runOptions,
	first func(context.Context, []graph.RunOption) (*graph.Result, error),
) (*graph.Result, error) {
	ctx, span := trace.Tracer.Start(ctx, "runner "+op+" "+r.exec.Name())
	defer span.End()
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	callbacks := r.callbacks.Merge(recursionLimit(o.config.RecursionLimit))
	gopts := []graph.RunOption{graph.WithCallbacks(callbacks)}
	if o.runID != "" {
		gopts = append(gopts, graph.WithRunID(o.runID))
	}
	start := time.Now()

	var (
		last    *graph.Result
		lastErr error
		attempt int
	)
	res, err := backoff.Retry(ctx, func() (*graph.Result, error) {
		var next *graph.Result
		var nextErr error
		if attempt == 0 {
			next, nextErr = first(ctx, append(gopts, graph.WithStatePatch(o.patch)))
		} else {
			log.With("graph", r.exec.Name(), "run_id", last.RunID).
				Warnf("failed at %s, retry %d/%d: %v", last.NodeID, attempt, r.config.RetryCount, lastErr)
			next, nextErr = r.exec.Resume(ctx, last.Token, o.config, gopts...)
		}
		attempt++
		if next != nil {
			last = next
		}
		lastErr = nextErr
		if nextErr != nil && !r.retryable(last, nextErr) {
			return next, backoff.Permanent(nextErr)
		}
		return next, nextErr
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.config.RetryCount)+1),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if res == nil {
		res = last
	}
	r.logOutcome(op, res, err, time.Since(start))
	return res, err
}

// retryable reports whether a failed call can be resumed from its token.
func (r *runner) retryable(res *graph.Result, err error) bool {
	return r.config.RetryCount > 0 &&
		res != nil && res.Token != nil &&
		graph.IsExternalCallError(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (r *runner) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.config.RetryDelay > 0 {
		b.InitialInterval = r.config.RetryDelay
	}
	if r.config.MaxRetryDelay > 0 {
		b.MaxInterval = r.config.MaxRetryDelay
	}
	return b
}

func (r *runner) logOutcome(op string, res *graph.Result, err error, elapsed time.Duration) {
	if res == nil {
		log.With("graph", r.exec.Name(), "op", op).Errorf("run failed to start: %v", err)
		return
	}
	l := log.With("graph", r.exec.Name(), "run_id", res.RunID, "op", op, "steps", res.Steps)
	switch {
	case err != nil:
		l.Errorf("failed at %s after %s: %v", res.NodeID, elapsed, err)
	case res.Status == graph.RunSuspended:
		l.Infof("suspended at %s", res.NodeID)
	default:
		l.Infof("%s in %s", res.Status, elapsed)
	}
}

// recursionLimit fails a run before it executes its limit-th step. Steps
// are counted across resumes.
func recursionLimit(limit int) *graph.NodeCallbacks {
	if limit <= 0 {
		return nil
	}
	return graph.NewNodeCallbacks().RegisterBeforeNode(
		func(_ context.Context, cb *graph.NodeCallbackContext, _ graph.State) (graph.State, error) {
			if cb.Step >= limit {
				return nil, fmt.Errorf("%w: %d steps in graph %s", ErrRecursionLimit, limit, cb.Graph)
			}
			return nil, nil
		})
}
