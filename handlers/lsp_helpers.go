package handlers

import (
	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/lsp"
	"github.com/lspd/lspd/pathutil"
	"github.com/lspd/lspd/symbolindex"
)

// asMethodNotSupported narrows a classified LSP error into
// lsp.MethodNotSupportedError at the handler boundary (spec §4.2, §7).
func asMethodNotSupported(err error, method, serverName string) error {
	return lsp.AsMethodNotSupported(err, method, serverName)
}

// toLocations converts protocol.Location results into the client-facing,
// one-based Location shape (spec §3 "daemon exposes one-based line
// numbers").
func toLocations(locs []protocol.Location) []Location {
	out := make([]Location, len(locs))
	for i, l := range locs {
		out[i] = Location{
			Path:   pathutil.ToFilePath(string(l.Uri)),
			Line:   toOneBased(l.Range.Start.Line),
			Column: int(l.Range.Start.Character) + 1,
		}
	}
	return out
}

// enclosingSymbolRange walks a document's symbol tree for the
// deepest-nesting symbol whose full range contains defLine, returning its
// range and kind (spec §4.9 `show`: "locate the enclosing symbol at the
// definition line via documentSymbol"). The kind is returned so callers can
// gate kind-specific behavior (e.g. the Constant/Variable single-line
// expansion) without re-walking the tree.
func enclosingSymbolRange(symbols []protocol.DocumentSymbol, defLine int) (startLine, endLine int, name, kind string) {
	var best protocol.DocumentSymbol
	found := false

	var walk func(sym protocol.DocumentSymbol)
	walk = func(sym protocol.DocumentSymbol) {
		start := toOneBased(sym.Range.Start.Line)
		end := toOneBased(sym.Range.End.Line)
		if defLine >= start && defLine <= end {
			best = sym
			found = true
		}
		for _, child := range sym.Children {
			walk(child)
		}
	}
	for _, sym := range symbols {
		walk(sym)
	}

	if !found {
		return defLine, defLine, "", ""
	}
	return toOneBased(best.Range.Start.Line), toOneBased(best.Range.End.Line), best.Name, symbolindex.SymbolKindName(best.Kind)
}
