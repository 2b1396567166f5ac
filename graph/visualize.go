//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Layout directions accepted by WithRankDir.
const (
	RankDirLR = "LR"
	RankDirTB = "TB"
)

const (
	edgeColorConditional = "#999999"
	borderInterrupt      = "#f44336"
)

// palette maps a node type to its fill and border colors.
var palette = map[NodeType][2]string{
	NodeTypeLLM:       {"#e3f2fd", "#2196f3"},
	NodeTypeTool:      {"#fff3e0", "#ff9800"},
	NodeTypeRetriever: {"#e8f5e9", "#4caf50"},
}

var defaultPalette = [2]string{"#f3e5f5", "#9c27b0"}

// VizOptions controls DOT export.
type VizOptions struct {
	RankDir           string
	IncludeInterrupts bool
	IncludeStartEnd   bool
	// GraphLabel defaults to the graph name.
	GraphLabel string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets the layout direction. Unknown values are ignored.
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithIncludeInterrupts marks interrupt nodes with a dashed red border.
func WithIncludeInterrupts(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeInterrupts = include }
}

// WithIncludeStartEnd draws the virtual start and end nodes.
func WithIncludeStartEnd(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeStartEnd = include }
}

// WithGraphLabel sets the caption of the drawing.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

// attr is one DOT attribute. Quoted values are escaped and wrapped in
// double quotes.
type attr struct {
	key, val string
	quoted   bool
}

func quoted(key, val string) attr { return attr{key: key, val: val, quoted: true} }
func plain(key, val string) attr { return attr{key: key, val: val} }

type dotWriter struct{ strings.Builder }

func (w *dotWriter) stmt(head string, attrs ...attr) {
	w.WriteString("  ")
	w.WriteString(head)
	if len(attrs) > 0 {
		parts := make([]string, len(attrs))
		for i, a := range attrs {
			if a.quoted {
				parts[i] = fmt.Sprintf("%s=\"%s\"", a.key, escapeDOT(a.val))
			} else {
				parts[i] = a.key + "=" + a.val
			}
		}
		w.WriteString(" [" + strings.Join(parts, ", ") + "]")
	}
	w.WriteString(";\n")
}

func (w *dotWriter) node(id string, attrs ...attr) {
	w.stmt(quoteID(id), attrs...)
}

func (w *dotWriter) edge(from, to string, attrs ...attr) {
	w.stmt(quoteID(from)+" -> "+quoteID(to), attrs...)
}

// DOT renders the compiled graph in Graphviz DOT. Nodes appear in
// declaration order and are colored by NodeType. Conditional edges are
// dashed and labelled with their branch key.
func (e *Executable[C]) DOT(opts ...VizOption) string {
	o := &VizOptions{
		RankDir:           RankDirLR,
		IncludeInterrupts: true,
		IncludeStartEnd:   true,
		GraphLabel:        e.name,
	}
	for _, fn := range opts {
		fn(o)
	}

	w := &dotWriter{}
	w.WriteString("digraph G {\n")
	w.stmt("rankdir=" + o.RankDir)
	w.stmt("node", quoted("fontname", "Helvetica"))
	w.stmt("edge", quoted("fontname", "Helvetica"))
	if o.GraphLabel != "" {
		w.stmt(fmt.Sprintf("label=\"%s\"", escapeDOT(o.GraphLabel)))
		w.stmt("labelloc=t")
	}
	if o.IncludeStartEnd {
		w.node(Start, quoted("label", "start"), plain("shape", "oval"), plain("style", "filled"),
			quoted("fillcolor", "#e1f5e1"), quoted("color", "#4caf50"))
		w.node(End, quoted("label", "finish"), plain("shape", "oval"), plain("style", "filled"),
			quoted("fillcolor", "#ffe1e1"), quoted("color", "#f44336"))
	}
	for _, id := range e.nodeOrder {
		e.writeNode(w, id, o)
	}
	if o.IncludeStartEnd {
		w.edge(Start, e.entry)
	}
	for _, from := range e.nodeOrder {
		e.writeEdgesFrom(w, from, o)
	}
	if !o.IncludeStartEnd && e.entry != "" {
		w.node(e.entry, plain("peripheries", "2"))
	}
	w.WriteString("}\n")
	return w.String()
}

func (e *Executable[C]) writeNode(w *dotWriter, id string, o *VizOptions) {
	info := e.nodes[id].info
	label := info.Name
	if label == "" {
		label = info.ID
	}
	colors, ok := palette[info.Type]
	if !ok {
		colors = defaultPalette
	}
	var marks []string
	if o.IncludeInterrupts {
		if e.interruptBefore[id] {
			marks = append(marks, "interrupt before")
		}
		if e.interruptAfter[id] {
			marks = append(marks, "interrupt after")
		}
	}
	if len(marks) == 0 {
		w.node(id, quoted("label", label), plain("shape", "box"), plain("style", "filled"),
			quoted("fillcolor", colors[0]), quoted("color", colors[1]))
		return
	}
	w.node(id, quoted("label", label), plain("shape", "box"), quoted("style", "filled,dashed"),
		quoted("fillcolor", colors[0]), quoted("color", borderInterrupt), quoted("xlabel", strings.Join(marks, ", ")))
}

// writeEdgesFrom draws the static edge of from, or one dashed edge per
// branch of its conditional edge. A conditional edge without a path map
// may reach any node.
func (e *Executable[C]) writeEdgesFrom(w *dotWriter, from string, o *VizOptions) {
	if to, ok := e.edges[from]; ok {
		if o.IncludeStartEnd || to != End {
			w.edge(from, to)
		}
		return
	}
	ce, ok := e.condEdges[from]
	if !ok {
		return
	}
	paths := ce.PathMap
	if paths == nil {
		paths = map[string]string{End: End}
		for _, id := range e.nodeOrder {
			paths[id] = id
		}
	}
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		to := paths[k]
		if !o.IncludeStartEnd && to == End {
			continue
		}
		w.edge(from, to, plain("style", "dashed"), quoted("color", edgeColorConditional), quoted("label", k))
	}
}

// WriteDOT writes the DOT rendering to dst.
func (e *Executable[C]) WriteDOT(dst io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(dst, e.DOT(opts...))
	return err
}

func quoteID(id string) string { return "\"" + escapeDOT(id) + "\"" }

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeDOT(s string) string { return dotEscaper.Replace(s) }
