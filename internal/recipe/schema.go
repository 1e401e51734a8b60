package recipe

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed recipe.cue
var schemaSource string

// schema holds the compiled #Recipe definition. cue.Context is not safe for
// concurrent use, so every validation runs under mu.
type schema struct {
	mu     sync.Mutex
	ctx    *cue.Context
	recipe cue.Value
	err    error
}

var (
	schemaOnce sync.Once
	compiled   *schema
)

func loadSchema() *schema {
	schemaOnce.Do(func() {
		s := &schema{ctx: cuecontext.New()}
		v := s.ctx.CompileString(schemaSource, cue.Filename("recipe.cue"))
		if err := v.Err(); err != nil {
			s.err = fmt.Errorf("compile recipe schema: %w", err)
		} else {
			s.recipe = v.LookupPath(cue.ParsePath("#Recipe"))
		}
		compiled = s
	})
	return compiled
}

// ValidateDocument checks a decoded recipe document (the result of
// unmarshalling JSON or YAML into any) against the recipe schema. Every
// violation is reported as its own ConfigurationError.
func ValidateDocument(doc any) []*ConfigurationError {
	s := loadSchema()
	if s.err != nil {
		return []*ConfigurationError{{Message: "schema unavailable", Err: s.err}}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := documentName(doc)
	v := s.ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return []*ConfigurationError{{Recipe: name, Message: "unreadable document", Err: err}}
	}

	err := s.recipe.Unify(v).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []*ConfigurationError
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		field := strings.Join(e.Path(), ".")
		msg := fmt.Sprintf(format, args...)
		key := field + "\x00" + msg
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, &ConfigurationError{Recipe: name, Field: field, Message: msg})
	}
	if len(out) == 0 {
		out = append(out, &ConfigurationError{Recipe: name, Message: err.Error()})
	}
	return out
}

func documentName(doc any) string {
	m, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := m["name"].(string)
	return name
}
