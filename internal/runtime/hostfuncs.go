package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/solidex/internal/model"
)

// Host functions give scripts read access to the model. Risor cannot walk Go
// structs by field, so symbols and references cross the boundary as maps of
// primitive values keyed by snake_case names.

// symbols(kind?) → list of symbol maps in declaration order
func makeSymbolsFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("symbols", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.NewArgsRangeError("symbols", 0, 1, len(args))
		}
		kind := model.KindUnknown
		if len(args) == 1 {
			s, err := toString(args[0])
			if err != nil {
				return object.Errorf("symbols: %v", err)
			}
			k, err := model.ParseKind(s)
			if err != nil {
				return object.Errorf("symbols: %v", err)
			}
			kind = k
		}

		var out []*model.Symbol
		for _, s := range m.Symbols() {
			if kind == model.KindUnknown || s.Kind == kind {
				out = append(out, s)
			}
		}
		return symbolsToList(out)
	})
}

// symbol(id) → symbol map or nil
func makeSymbolFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbol", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbol: %v", err)
		}
		s, ok := m.Symbol(model.SymbolID(id))
		if !ok {
			return object.Nil
		}
		return symbolToMap(s)
	})
}

// children(id) → list of symbol maps in declaration order
func makeChildrenFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("children", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("children", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("children: %v", err)
		}
		return idsToList(m, m.Children(model.SymbolID(id)))
	})
}

// supertypes(id) → list of direct base symbol maps in declaration order
func makeSupertypesFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("supertypes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("supertypes", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("supertypes: %v", err)
		}
		return idsToList(m, m.DirectSupertypes(model.SymbolID(id)))
	})
}

// callees(id) → list of distinct callee symbol maps, by first call site
func makeCalleesFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("callees", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("callees", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("callees: %v", err)
		}

		seen := make(map[model.SymbolID]bool)
		var ids []model.SymbolID
		for _, c := range m.CallSites() {
			if c.Caller != model.SymbolID(id) || seen[c.Callee] {
				continue
			}
			seen[c.Callee] = true
			ids = append(ids, c.Callee)
		}
		return idsToList(m, ids)
	})
}

// references(id) → list of {path, start, end, line, character, kind}
func makeReferencesFn(m *model.Model) *object.Builtin {
	return object.NewBuiltin("references", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("references", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("references: %v", err)
		}

		refs := m.References(model.SymbolID(id))
		results := make([]object.Object, 0, len(refs))
		for _, r := range refs {
			results = append(results, object.NewMap(map[string]object.Object{
				"path":      object.NewString(r.Location.Path),
				"start":     object.NewInt(int64(r.Location.Span.Start)),
				"end":       object.NewInt(int64(r.Location.Span.End)),
				"line":      object.NewInt(int64(r.Location.Range.Start.Line)),
				"character": object.NewInt(int64(r.Location.Range.Start.Character)),
				"kind":      object.NewString(r.Kind.String()),
			}))
		}
		return object.NewList(results)
	})
}

// reporter collects the findings of one script run.
type reporter struct {
	detector string
	findings []model.Finding
}

// report({message, symbol?, detector?, severity?, confidence?}) → nil
//
// The finding is anchored at the symbol's name. Severity defaults to
// Informational, confidence to Medium and the detector id to the script name.
func makeReportFn(m *model.Model, rep *reporter) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("report", 1, len(args))
		}
		fields, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("report: %v", err)
		}

		f := model.Finding{
			Detector:   getStringDefault(fields, "detector", rep.detector),
			Severity:   model.SeverityInformational,
			Confidence: model.ConfidenceMedium,
			Message:    getString(fields, "message"),
		}
		if f.Message == "" {
			return object.Errorf("report: message is required")
		}
		if v := getString(fields, "severity"); v != "" {
			if f.Severity, err = model.ParseSeverity(v); err != nil {
				return object.Errorf("report: %v", err)
			}
		}
		if v := getString(fields, "confidence"); v != "" {
			if f.Confidence, err = model.ParseConfidence(v); err != nil {
				return object.Errorf("report: %v", err)
			}
		}
		if id := getString(fields, "symbol"); id != "" {
			s, ok := m.Symbol(model.SymbolID(id))
			if !ok {
				return object.Errorf("report: unknown symbol %q", id)
			}
			f.Symbols = []model.SymbolID{s.ID}
			f.Locations = []model.Location{s.NameLoc}
		}

		rep.findings = append(rep.findings, f)
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string)  { l.logger.Info(msg) }
func (l *logObject) Warn(msg string)  { l.logger.Warn(msg) }
func (l *logObject) Error(msg string) { l.logger.Error(msg) }

// --- Conversion helpers ---

func symbolToMap(s *model.Symbol) object.Object {
	return object.NewMap(map[string]object.Object{
		"id":             object.NewString(string(s.ID)),
		"kind":           object.NewString(s.Kind.String()),
		"name":           object.NewString(s.Name),
		"qualified_name": object.NewString(s.QualifiedName),
		"signature":      object.NewString(s.Signature),
		"path":           object.NewString(s.Path),
		"line":           object.NewInt(int64(s.NameLoc.Range.Start.Line)),
		"parent":         object.NewString(string(s.Parent)),
		"visibility":     object.NewString(s.Visibility),
		"mutability":     object.NewString(s.Mutability),
		"implemented":    object.NewBool(s.Implemented),
		"abstract":       object.NewBool(s.Abstract),
	})
}

func symbolsToList(syms []*model.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, s := range syms {
		results = append(results, symbolToMap(s))
	}
	return object.NewList(results)
}

func idsToList(m *model.Model, ids []model.SymbolID) object.Object {
	syms := make([]*model.Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.Symbol(id); ok {
			syms = append(syms, s)
		}
	}
	return symbolsToList(syms)
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	v := getString(m, key)
	if v == "" {
		return def
	}
	return v
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
