package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/lsp"
	"github.com/lspd/lspd/pathutil"
)

// CallsParams is the `calls` request (spec §4.9, §6). from_* locates the
// root item for outgoing/incoming mode, or the search source for path
// mode; to_* locates the search destination for path mode.
type CallsParams struct {
	WorkspaceRoot       string `json:"workspace_root"`
	Mode                string `json:"mode"`
	FromPath            string `json:"from_path"`
	FromLine            int    `json:"from_line"`
	FromColumn          int    `json:"from_column"`
	ToPath              string `json:"to_path"`
	ToLine              int    `json:"to_line"`
	ToColumn            int    `json:"to_column"`
	MaxDepth            int    `json:"max_depth"`
	IncludeNonWorkspace bool   `json:"include_non_workspace"`
}

// CallNode is one vertex in an outgoing/incoming call tree.
type CallNode struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Path     string     `json:"path"`
	Line     int        `json:"line"`
	Column   int        `json:"column"`
	Detail   string     `json:"detail,omitempty"`
	Children []CallNode `json:"children,omitempty"`
}

// CallsResult is the `calls` response: either a tree (outgoing/incoming)
// or a path (spec §6 "call tree or path").
type CallsResult struct {
	Tree  *CallNode  `json:"tree,omitempty"`
	Path  []CallNode `json:"path,omitempty"`
	Found bool       `json:"found"`
}

const defaultMaxDepth = 2

// Calls implements spec §4.9 `calls`.
func Calls(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p CallsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("calls: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" || p.FromPath == "" {
		return nil, &daemon.ValidationError{Message: "calls: workspace_root and from_path are required"}
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = defaultMaxDepth
	}

	client, uri, server, err := openAt(ctx, hctx, p.FromPath, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if !client.Supports("callHierarchy") {
		return nil, &lsp.MethodNotSupportedError{Method: "textDocument/prepareCallHierarchy", ServerName: server}
	}
	roots, err := client.PrepareCallHierarchy(ctx, uri, toZeroBased(p.FromLine), uint32(p.FromColumn))
	if err != nil {
		return nil, asMethodNotSupported(err, "textDocument/prepareCallHierarchy", server)
	}
	if len(roots) == 0 {
		return &CallsResult{}, nil
	}
	root := roots[0]

	walker := &callWalker{
		client:              client,
		server:              server,
		workspaceRoot:       p.WorkspaceRoot,
		includeNonWorkspace: p.IncludeNonWorkspace,
		visited:             make(map[string]bool),
	}

	switch p.Mode {
	case "incoming":
		tree, err := walker.expand(ctx, root, p.MaxDepth, false)
		if err != nil {
			return nil, err
		}
		return &CallsResult{Tree: tree}, nil
	case "path":
		if p.ToPath == "" {
			return nil, &daemon.ValidationError{Message: "calls: to_path is required for path mode"}
		}
		destURI, err := pathutil.PathToURI(p.ToPath)
		if err != nil {
			return nil, &daemon.ValidationError{Message: fmt.Sprintf("calls: invalid to_path: %v", err)}
		}
		destLine := toZeroBased(p.ToLine)
		path, found, err := walker.findPath(ctx, root, destURI, destLine, p.MaxDepth)
		if err != nil {
			return nil, err
		}
		return &CallsResult{Path: path, Found: found}, nil
	case "outgoing", "":
		tree, err := walker.expand(ctx, root, p.MaxDepth, true)
		if err != nil {
			return nil, err
		}
		return &CallsResult{Tree: tree}, nil
	default:
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("calls: unknown mode %q", p.Mode)}
	}
}

type callWalker struct {
	client              *lsp.Client
	server              string
	workspaceRoot       string
	includeNonWorkspace bool
	visited             map[string]bool
}

func itemKey(item protocol.CallHierarchyItem) string {
	return fmt.Sprintf("%s:%d", item.Uri, item.SelectionRange.Start.Line)
}

func (w *callWalker) inScope(item protocol.CallHierarchyItem) bool {
	if w.includeNonWorkspace {
		return true
	}
	path := pathutil.ToFilePath(string(item.Uri))
	return strings.HasPrefix(path, w.workspaceRoot)
}

func toCallNode(item protocol.CallHierarchyItem) CallNode {
	return CallNode{
		Name:   item.Name,
		Kind:   fmt.Sprintf("%v", item.Kind),
		Path:   pathutil.ToFilePath(string(item.Uri)),
		Line:   toOneBased(item.SelectionRange.Start.Line),
		Column: int(item.SelectionRange.Start.Character) + 1,
		Detail: item.Detail,
	}
}

// expand recursively builds a call tree to maxDepth, breaking cycles on
// (uri, start_line) and dropping out-of-scope items unless
// includeNonWorkspace is set (spec §4.9 `calls`).
func (w *callWalker) expand(ctx context.Context, item protocol.CallHierarchyItem, maxDepth int, outgoing bool) (*CallNode, error) {
	node := toCallNode(item)
	key := itemKey(item)
	if w.visited[key] || maxDepth <= 0 {
		return &node, nil
	}
	w.visited[key] = true

	if outgoing {
		calls, err := w.client.OutgoingCalls(ctx, item)
		if err != nil {
			return nil, asMethodNotSupported(err, "callHierarchy/outgoingCalls", w.server)
		}
		for _, call := range calls {
			if !w.inScope(call.To) {
				continue
			}
			child, err := w.expand(ctx, call.To, maxDepth-1, outgoing)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, *child)
		}
	} else {
		calls, err := w.client.IncomingCalls(ctx, item)
		if err != nil {
			return nil, asMethodNotSupported(err, "callHierarchy/incomingCalls", w.server)
		}
		for _, call := range calls {
			if !w.inScope(call.From) {
				continue
			}
			child, err := w.expand(ctx, call.From, maxDepth-1, outgoing)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, *child)
		}
	}
	return &node, nil
}

// findPath runs a breadth-first search over outgoing edges from root to a
// destination (uri, line), up to maxDepth (spec §4.9 `calls` path mode).
func (w *callWalker) findPath(ctx context.Context, root protocol.CallHierarchyItem, destURI string, destLine uint32, maxDepth int) ([]CallNode, bool, error) {
	type frame struct {
		item protocol.CallHierarchyItem
		path []protocol.CallHierarchyItem
	}
	queue := []frame{{item: root, path: []protocol.CallHierarchyItem{root}}}
	seen := map[string]bool{itemKey(root): true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if string(cur.item.Uri) == destURI && cur.item.SelectionRange.Start.Line == destLine {
			out := make([]CallNode, len(cur.path))
			for i, it := range cur.path {
				out[i] = toCallNode(it)
			}
			return out, true, nil
		}
		if len(cur.path) > maxDepth {
			continue
		}

		calls, err := w.client.OutgoingCalls(ctx, cur.item)
		if err != nil {
			return nil, false, asMethodNotSupported(err, "callHierarchy/outgoingCalls", w.server)
		}
		for _, call := range calls {
			key := itemKey(call.To)
			if seen[key] || !w.inScope(call.To) {
				continue
			}
			seen[key] = true
			nextPath := append(append([]protocol.CallHierarchyItem{}, cur.path...), call.To)
			queue = append(queue, frame{item: call.To, path: nextPath})
		}
	}
	return nil, false, nil
}
