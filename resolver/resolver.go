// Package resolver turns a human-typed reference like "pattern",
// "path:pattern", or "path:line:pattern" into a symbol resolved against a
// workspace's symbol collection, or a structured ambiguity error carrying
// unique suggested refs for each candidate (spec §4.7).
package resolver

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lspd/lspd/model"
)

// Ref is a parsed reference string.
type Ref struct {
	Path      string // empty if unspecified
	Line      int    // 0 if unspecified
	Container []string
	Name      string
}

// ParseRef implements spec §4.7's colon-counting parse: two colons mean
// path:line:dotted, one means path:dotted, none means dotted.
func ParseRef(input string) (Ref, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Ref{}, fmt.Errorf("resolver: empty reference")
	}

	colons := strings.Count(input, ":")
	var path, dotted string
	var line int

	switch colons {
	case 0:
		dotted = input
	case 1:
		parts := strings.SplitN(input, ":", 2)
		path, dotted = parts[0], parts[1]
	default:
		parts := strings.SplitN(input, ":", 3)
		path = parts[0]
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return Ref{}, fmt.Errorf("resolver: invalid line number %q in %q", parts[1], input)
		}
		line = n
		dotted = parts[2]
	}

	segments := strings.Split(dotted, ".")
	if len(segments) == 0 || segments[len(segments)-1] == "" {
		return Ref{}, fmt.Errorf("resolver: empty symbol name in %q", input)
	}
	name := segments[len(segments)-1]
	container := segments[:len(segments)-1]

	return Ref{Path: path, Line: line, Container: container, Name: name}, nil
}

// typeKinds are the kinds preferred when a query's matches mix type-like
// and non-type-like symbols (spec §4.7 "Type preference").
var typeKinds = map[string]bool{
	"class": true, "struct": true, "interface": true, "enum": true,
	"module": true, "namespace": true, "package": true,
}

// methodSigPattern strips a parenthesized suffix/prefix from a decorated
// name, e.g. "save(Foo)" -> "save", "(*Type).Method" -> handled separately.
var methodSigPattern = regexp.MustCompile(`\([^()]*\)`)

// NormalizeName strips language decorations from a symbol name so it can
// be compared against a bare target name (spec §4.7 "Name matching").
func NormalizeName(name string) string {
	if recv, method, ok := splitReceiverMethod(name); ok {
		_ = recv
		return method
	}
	n := methodSigPattern.ReplaceAllString(name, "")
	return strings.TrimSpace(n)
}

// splitReceiverMethod recognizes "(*Type).Method" or "(Type).Method" and
// returns the receiver type name and the bare method name.
func splitReceiverMethod(name string) (receiver, method string, ok bool) {
	if !strings.HasPrefix(name, "(") {
		return "", "", false
	}
	closeIdx := strings.Index(name, ")")
	if closeIdx < 0 || closeIdx+1 >= len(name) || name[closeIdx+1] != '.' {
		return "", "", false
	}
	recv := strings.TrimPrefix(name[1:closeIdx], "*")
	rest := name[closeIdx+2:]
	return recv, rest, true
}

// effectiveContainer computes the container string used for container-chain
// matching: a normalized `container` field, or the receiver type extracted
// from a `(*Type).Method`-style name (spec §4.7).
func effectiveContainer(s model.Symbol) string {
	if recv, _, ok := splitReceiverMethod(s.Name); ok {
		return recv
	}
	return normalizeContainer(s.Container)
}

// normalizeContainer reduces an "impl Trait for Type" container string to
// just "Type" (spec §4.7).
func normalizeContainer(container string) string {
	if idx := strings.Index(container, " for "); idx >= 0 && strings.HasPrefix(container, "impl ") {
		return strings.TrimSpace(container[idx+len(" for "):])
	}
	return container
}

// moduleOf returns the file-stem "module" name for a symbol's path (spec
// §4.7 "its containing module (file stem)").
func moduleOf(s model.Symbol) string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// matchesPath implements spec §4.7's path filter: a glob match against the
// relative path, or, when the filter has no slash, a basename or
// any-path-part match.
func matchesPath(filter, path string) bool {
	if filter == "" {
		return true
	}
	if !strings.Contains(filter, "/") {
		if filepath.Base(path) == filter {
			return true
		}
		for _, part := range strings.Split(path, "/") {
			if part == filter {
				return true
			}
		}
		return false
	}
	ok, _ := doublestar.Match(filter, path)
	return ok
}

// nameMatches implements spec §4.7's name matching rule.
func nameMatches(symbolName, target string) bool {
	if symbolName == target {
		return true
	}
	return NormalizeName(symbolName) == target
}

// containerMatches implements spec §4.7's container-chain matching when
// the dotted reference has more than one segment.
func containerMatches(s model.Symbol, chain []string) bool {
	if len(chain) == 0 {
		return true
	}

	target := strings.Join(chain, ".")
	container := effectiveContainer(s)
	module := moduleOf(s)
	full := module
	if container != "" {
		full = module + "." + container
	}

	if container == target || full == target {
		return true
	}
	if strings.HasSuffix(full, "."+target) || strings.HasSuffix(container, "."+target) {
		return true
	}
	if len(chain) == 1 && chain[0] == module && container == "" {
		return true
	}
	return false
}

// Candidates filters symbols against a parsed Ref, applying path, line,
// name, container, and type-kind preference rules (spec §4.7).
func Candidates(symbols []model.Symbol, ref Ref) []model.Symbol {
	var matches []model.Symbol
	for _, s := range symbols {
		if !matchesPath(ref.Path, s.Path) {
			continue
		}
		if ref.Line != 0 && s.Line != ref.Line {
			continue
		}
		if !nameMatches(s.Name, ref.Name) {
			continue
		}
		if !containerMatches(s, ref.Container) {
			continue
		}
		matches = append(matches, s)
	}

	return preferTypeKinds(matches)
}

// preferTypeKinds implements spec §4.7's "Type preference": when matches
// mix type-like and non-type-like kinds, keep only the type-like ones.
func preferTypeKinds(matches []model.Symbol) []model.Symbol {
	if len(matches) < 2 {
		return matches
	}

	var typeMatches, otherMatches []model.Symbol
	for _, s := range matches {
		if typeKinds[strings.ToLower(s.Kind)] {
			typeMatches = append(typeMatches, s)
		} else {
			otherMatches = append(otherMatches, s)
		}
	}
	if len(typeMatches) > 0 && len(otherMatches) > 0 {
		return typeMatches
	}
	return matches
}

// AmbiguityError is returned when more than one symbol matches a
// reference; it carries up to ten candidates with unique suggested refs
// (spec §4.7).
type AmbiguityError struct {
	Candidates []Candidate
}

// Candidate pairs a matched symbol with the shortest ref string that
// resolves only to it.
type Candidate struct {
	Symbol      model.Symbol
	SuggestedRef string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("resolver: ambiguous symbol, %d candidates", len(e.Candidates))
}

// NotFoundError is returned when a reference matches no symbol.
type NotFoundError struct {
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resolver: no symbol matches %q", e.Input)
}

// maxCandidates bounds the ambiguity error's candidate list (spec §4.7
// "up to ten candidate matches").
const maxCandidates = 10

// Resolve parses input, filters the symbol collection, and returns either
// a unique ResolvedSymbol or an *AmbiguityError/*NotFoundError (spec §4.7).
func Resolve(symbols []model.Symbol, input string) (*model.ResolvedSymbol, error) {
	ref, err := ParseRef(input)
	if err != nil {
		return nil, err
	}

	matches := Candidates(symbols, ref)
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{Input: input}
	case 1:
		return toResolved(matches[0]), nil
	default:
		return nil, buildAmbiguity(matches)
	}
}

func toResolved(s model.Symbol) *model.ResolvedSymbol {
	return &model.ResolvedSymbol{
		Path:           s.Path,
		Line:           s.Line,
		Column:         s.Column,
		Name:           s.Name,
		Kind:           s.Kind,
		Container:      s.Container,
		RangeStartLine: s.RangeStartLine,
		RangeEndLine:   s.RangeEndLine,
	}
}

func buildAmbiguity(matches []model.Symbol) *AmbiguityError {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})

	limit := len(matches)
	if limit > maxCandidates {
		limit = maxCandidates
	}

	candidates := make([]Candidate, limit)
	for i := 0; i < limit; i++ {
		candidates[i] = Candidate{
			Symbol:       matches[i],
			SuggestedRef: SuggestRef(matches[i], matches),
		}
	}
	return &AmbiguityError{Candidates: candidates}
}

// SuggestRef computes the shortest ref that resolves only to candidate
// within the full match set all, trying container.name, basename.name,
// basename.container.name, then the always-unique basename:line:name
// (spec §4.7 "Unambiguous suggested references"). The basename-involving
// forms are emitted with `path:dotted` colon syntax rather than dot-joining
// the basename into the dotted chain: a basename like "a.go" already
// contains a dot, and the dotted-chain parser has no notion of a
// "module+extension" segment, so a dot-joined "a.go.Run" could never
// parse back to the same (path, container, name) it was built from.
// Routing through the path prefix instead lets ParseRef/matchesPath do the
// basename matching spec §4.7 already defines for `path:dotted` input.
func SuggestRef(candidate model.Symbol, all []model.Symbol) string {
	basename := filepath.Base(candidate.Path)
	container := effectiveContainer(candidate)

	if container != "" {
		ref := container + "." + candidate.Name
		if countMatchingContainer(all, container, candidate.Name) == 1 {
			return ref
		}
	}

	if countMatchingBasename(all, basename, candidate.Name) == 1 {
		return basename + ":" + candidate.Name
	}

	if container != "" {
		ref := basename + ":" + container + "." + candidate.Name
		if countMatchingBasenameContainer(all, basename, container, candidate.Name) == 1 {
			return ref
		}
	}

	return fmt.Sprintf("%s:%d:%s", basename, candidate.Line, candidate.Name)
}

func countMatchingContainer(all []model.Symbol, container, name string) int {
	n := 0
	for _, s := range all {
		if s.Name == name && effectiveContainer(s) == container {
			n++
		}
	}
	return n
}

func countMatchingBasename(all []model.Symbol, basename, name string) int {
	n := 0
	for _, s := range all {
		if s.Name == name && filepath.Base(s.Path) == basename {
			n++
		}
	}
	return n
}

func countMatchingBasenameContainer(all []model.Symbol, basename, container, name string) int {
	n := 0
	for _, s := range all {
		if s.Name == name && filepath.Base(s.Path) == basename && effectiveContainer(s) == container {
			n++
		}
	}
	return n
}
