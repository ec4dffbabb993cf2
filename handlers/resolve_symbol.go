package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/model"
	"github.com/lspd/lspd/resolver"
)

// ResolveSymbolParams is the `resolve-symbol` request (spec §6).
type ResolveSymbolParams struct {
	WorkspaceRoot string `json:"workspace_root"`
	SymbolPath    string `json:"symbol_path"`
}

// AmbiguityCandidate is one entry in an ambiguous resolution's match list
// (spec §8 scenario S2).
type AmbiguityCandidate struct {
	model.ResolvedSymbol
	Ref string `json:"ref"`
}

// AmbiguousResult is the structured (non-exception) shape returned when a
// symbol reference matches more than one candidate (spec §4.7, §7
// "Ambiguous symbol ... structured result").
type AmbiguousResult struct {
	Error        string               `json:"error"`
	TotalMatches int                  `json:"total_matches"`
	Matches      []AmbiguityCandidate `json:"matches"`
}

// ResolveSymbol implements `resolve-symbol` (spec §4.9, §6): parse the
// human-typed reference, collect the workspace's symbols, and either
// return a unique resolution or a structured ambiguity result.
func ResolveSymbol(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p ResolveSymbolParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("resolve-symbol: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" || p.SymbolPath == "" {
		return nil, &daemon.ValidationError{Message: "resolve-symbol: workspace_root and symbol_path are required"}
	}

	symbols, err := collectWorkspaceSymbols(ctx, hctx, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	resolved, err := resolver.Resolve(symbols, p.SymbolPath)
	if err == nil {
		return resolved, nil
	}

	var ambiguity *resolver.AmbiguityError
	if errors.As(err, &ambiguity) {
		return buildAmbiguousResult(p.SymbolPath, ambiguity), nil
	}

	var notFound *resolver.NotFoundError
	if errors.As(err, &notFound) {
		return nil, notFound
	}
	return nil, err
}

func buildAmbiguousResult(input string, ambiguity *resolver.AmbiguityError) *AmbiguousResult {
	matches := make([]AmbiguityCandidate, len(ambiguity.Candidates))
	for i, c := range ambiguity.Candidates {
		matches[i] = AmbiguityCandidate{
			ResolvedSymbol: model.ResolvedSymbol{
				Path:           c.Symbol.Path,
				Line:           c.Symbol.Line,
				Column:         c.Symbol.Column,
				Name:           c.Symbol.Name,
				Kind:           c.Symbol.Kind,
				Container:      c.Symbol.Container,
				RangeStartLine: c.Symbol.RangeStartLine,
				RangeEndLine:   c.Symbol.RangeEndLine,
			},
			Ref: c.SuggestedRef,
		}
	}
	return &AmbiguousResult{
		Error:        fmt.Sprintf("Symbol '%s' is ambiguous (%d matches)", input, len(ambiguity.Candidates)),
		TotalMatches: len(ambiguity.Candidates),
		Matches:      matches,
	}
}
