//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"trpc.group/trpc-go/trpc-agent-graph/agent"
	"trpc.group/trpc-go/trpc-agent-graph/graph"
	"trpc.group/trpc-go/trpc-agent-graph/model"
	"trpc.group/trpc-go/trpc-agent-graph/runner"
)

// repl drives one graph from a terminal. Each turn is a new run seeded with
// the conversation of the previous one; suspended runs ask for approval
// before resuming.
type repl struct {
	rn      runner.Runner
	in      *bufio.Scanner
	out     io.Writer
	history []model.Message
}

func newREPL(rn runner.Runner, in io.Reader, out io.Writer) *repl {
	return &repl{rn: rn, in: bufio.NewScanner(in), out: out}
}

func (r *repl) loop(ctx context.Context) error {
	fmt.Fprintf(r.out, "%s ready. Empty line or Ctrl-D quits.\n", r.rn.Name())
	for {
		fmt.Fprint(r.out, "> ")
		line, ok := r.readLine()
		if !ok || line == "" {
			return nil
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

func (r *repl) turn(ctx context.Context, text string) error {
	msgs := append(append([]model.Message(nil), r.history...), model.NewUserMessage(text))
	res, err := r.rn.Run(ctx, graph.State{agent.StateKeyMessages: msgs})
	for err == nil && res.Status == graph.RunSuspended {
		if !r.approve(res) {
			fmt.Fprintln(r.out, "run abandoned")
			return nil
		}
		res, err = r.rn.Resume(ctx, res.Token)
	}
	if err != nil {
		return err
	}
	r.history = agent.Messages(res.State)
	if last, ok := agent.LastMessage(res.State); ok {
		fmt.Fprintln(r.out, last.Content)
	}
	return nil
}

// approve describes the interrupt point and asks whether to continue.
func (r *repl) approve(res *graph.Result) bool {
	where := "before"
	if res.Token.Phase == graph.PhaseAfter {
		where = "after"
	}
	fmt.Fprintf(r.out, "suspended %s %s\n", where, res.NodeID)
	if last, ok := agent.LastMessage(res.State); ok {
		for _, tc := range last.ToolCalls {
			fmt.Fprintf(r.out, "  pending %s(%s)\n", tc.Function.Name, tc.Function.Arguments)
		}
	}
	if docs := agent.RetrievedDocs(res.State); len(docs) > 0 {
		fmt.Fprintf(r.out, "  %d retrieved documents\n", len(docs))
	}
	fmt.Fprint(r.out, "continue? [y/N] ")
	answer, _ := r.readLine()
	return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
}

func (r *repl) readLine() (string, bool) {
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}
