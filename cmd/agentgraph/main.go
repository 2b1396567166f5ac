//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Command agentgraph runs the reason-act and retrieval graphs from the
// terminal or serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trpc.group/trpc-go/trpc-agent-graph/agent/react"
	"trpc.group/trpc-go/trpc-agent-graph/agent/retrieval"
	"trpc.group/trpc-go/trpc-agent-graph/config"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/knowledge/retriever"
	knowledgetool "trpc.group/trpc-go/trpc-agent-graph/knowledge/tool"
	"trpc.group/trpc-go/trpc-agent-graph/log"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/model/openai"
	"trpc.group/trpc-go/trpc-agent-graph/runner"
	"trpc.group/trpc-go/trpc-agent-graph/server"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-graph/telemetry/trace"
)

const (
	graphReAct     = "react"
	graphRetrieval = "retrieval"
)

var (
	graphFlag       = flag.String("graph", graphReAct, "graph to run: react or retrieval")
	configFlag      = flag.String("config", "", "YAML configuration file")
	messageFlag     = flag.String("message", "", "run once with this message instead of reading stdin")
	serveFlag       = flag.String("serve", "", "serve both graphs over HTTP on this address, e.g. :8080")
	dotFlag         = flag.Bool("dot", false, "print the graph in Graphviz DOT and exit")
	interruptBefore = flag.String("interrupt-before", "", "comma separated nodes to suspend before")
	interruptAfter  = flag.String("interrupt-after", "", "comma separated nodes to suspend after")
	ingestFlag      = flag.String("ingest", "", "comma separated files or directories to index into elasticsearch, then exit")
	logLevel        = flag.String("log-level", "info", "debug, info, warn or error")
	logFormat       = flag.String("log-format", "console", "console or json")
	traceFlag       = flag.String("trace", "", "OTLP endpoint receiving traces")
	metricsFlag     = flag.String("metrics", "", "OTLP endpoint receiving metrics")
	knowledgeFlag   = flag.Bool("knowledge-tool", false, "give the react graph a knowledge_search tool over the configured retriever")
	otlpFlag        = flag.String("otlp-protocol", "grpc", "OTLP protocol for -trace and -metrics: grpc or http")
	retriesFlag     = flag.Int("retries", runner.DefaultConfig().RetryCount, "resumes of a run failing on an external call")
)

func main() {
	flag.Parse()
	log.SetFormat(*logFormat)
	log.SetLevel(*logLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Errorf("agentgraph: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var overrides []config.Override
	if *interruptBefore != "" {
		overrides = append(overrides, config.WithInterruptBefore(splitFlag(*interruptBefore)...))
	}
	if *interruptAfter != "" {
		overrides = append(overrides, config.WithInterruptAfter(splitFlag(*interruptAfter)...))
	}
	cfg, err := config.Load(*configFlag, overrides...)
	if err != nil {
		return err
	}
	openai.Register(model.DefaultRegistry,
		openai.WithAPIKey(cfg.OpenAI.APIKey),
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
	)

	if *traceFlag != "" {
		clean, err := trace.Start(ctx, trace.WithEndpoint(*traceFlag), trace.WithProtocol(*otlpFlag))
		if err != nil {
			return err
		}
		defer logClose("trace", clean)
	}
	if *metricsFlag != "" {
		clean, err := metric.Start(ctx, metric.WithEndpoint(*metricsFlag), metric.WithProtocol(*otlpFlag))
		if err != nil {
			return err
		}
		defer logClose("metrics", clean)
	}

	if *ingestFlag != "" {
		return ingest(ctx, cfg, splitFlag(*ingestFlag))
	}

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	if *serveFlag != "" {
		return serve(ctx, reg, cfg, *serveFlag)
	}

	rn, err := reg.GetRunner(graphName(*graphFlag))
	if err != nil {
		return fmt.Errorf("%w: use -graph %s or %s", err, graphReAct, graphRetrieval)
	}
	if *dotFlag {
		_, err := fmt.Fprint(os.Stdout, rn.Graph().DOT())
		return err
	}
	r := newREPL(rn, os.Stdin, os.Stdout)
	if *messageFlag != "" {
		return r.turn(ctx, *messageFlag)
	}
	return r.loop(ctx)
}

func newRegistry(cfg *config.Config) (*runner.Registry, error) {
	rcfg := runner.DefaultConfig().WithRetry(*retriesFlag, runner.DefaultConfig().RetryDelay)
	var reactOpts []react.Option
	if *knowledgeFlag {
		tools := append(react.DefaultTools(cfg), knowledgetool.NewKnowledgeSearchTool(cfg))
		reactOpts = append(reactOpts, react.WithTools(tools...))
	}
	reactGraph, err := react.NewGraph(cfg, reactOpts...)
	if err != nil {
		return nil, err
	}
	retrievalGraph, err := retrieval.NewGraph(cfg)
	if err != nil {
		return nil, err
	}
	reg := runner.NewRegistry()
	for _, g := range []*graph.Executable[*config.Config]{reactGraph, retrievalGraph} {
		if err := reg.RegisterRunner(runner.NewRunner(g, cfg, runner.WithConfig(rcfg))); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func graphName(flagValue string) string {
	switch flagValue {
	case graphReAct:
		return react.GraphName
	case graphRetrieval:
		return retrieval.GraphName
	}
	return flagValue
}

// ingest indexes a corpus into the configured elasticsearch index.
func ingest(ctx context.Context, cfg *config.Config, paths []string) error {
	if cfg.RetrieverProvider != config.ProviderElasticsearch {
		return fmt.Errorf("-ingest needs retriever_provider %q", config.ProviderElasticsearch)
	}
	docs, err := retriever.LoadCorpus(paths)
	if err != nil {
		return err
	}
	r, err := retriever.MakeRetriever(ctx, cfg, retriever.WithDocuments(docs...))
	if err != nil {
		return err
	}
	log.Infof("ingested %d chunks from %d paths", len(docs), len(paths))
	return r.Close()
}

func serve(ctx context.Context, reg *runner.Registry, cfg *config.Config, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(reg, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("serving %v on %s", reg.ListRunners(), addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func splitFlag(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func logClose(what string, clean func() error) {
	if err := clean(); err != nil {
		log.Warnf("stop %s: %v", what, err)
	}
}
