// Package identity generates, validates, and parses task identifiers.
//
// Identifiers have the form
//
//	<prefix>_[<taskType>_]<timestamp><uuid4>
//
// where prefix and taskType are caller-chosen labels, timestamp is a
// fixed-width sortable UTC encoding (YYYYMMDDHHMMSS), and the trailing
// component is a version-4 UUID. Uniqueness comes entirely from the UUID,
// so concurrent generators never coordinate.
package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	taskstate "github.com/goliatone/go-taskstate"
)

// DefaultPrefix is used when a generator is built without an explicit
// prefix.
const DefaultPrefix = "task"

const timestampLayout = "20060102150405"

var (
	labelPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	uuid4Pattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

// Parsed holds the components of a well-formed task identifier.
type Parsed struct {
	Prefix    string
	TaskType  string
	Timestamp time.Time
	UUID      uuid.UUID
}

// Generator produces identifiers for a single configured prefix.
type Generator struct {
	prefix string
	now    func() time.Time
}

// Option customizes generator behavior.
type Option func(*Generator)

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New builds a generator for the given prefix; an empty prefix selects
// DefaultPrefix. Malformed prefixes are rejected up front rather than
// silently truncated.
func New(prefix string, opts ...Option) (*Generator, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !labelPattern.MatchString(prefix) {
		return nil, taskstate.WrapError(taskstate.ErrInvalidArgument, "invalid prefix", nil, map[string]any{
			"prefix": prefix,
		})
	}
	g := &Generator{
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Prefix returns the configured prefix.
func (g *Generator) Prefix() string {
	return g.prefix
}

// Generate produces a fresh identifier. taskType is an optional free-form
// categorization label; pass "" to omit it.
func (g *Generator) Generate(taskType string) (string, error) {
	if taskType != "" && !labelPattern.MatchString(taskType) {
		return "", taskstate.WrapError(taskstate.ErrInvalidArgument, "invalid task type", nil, map[string]any{
			"task_type": taskType,
		})
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", taskstate.WrapError(taskstate.ErrInvalidArgument, "failed to generate uuid", err, nil)
	}

	var sb strings.Builder
	sb.WriteString(g.prefix)
	sb.WriteByte('_')
	if taskType != "" {
		sb.WriteString(taskType)
		sb.WriteByte('_')
	}
	sb.WriteString(g.now().UTC().Format(timestampLayout))
	sb.WriteString(id.String())
	return sb.String(), nil
}

// Validate reports whether id matches the grammar for this generator's
// prefix.
func (g *Generator) Validate(id string) bool {
	_, err := g.Parse(id)
	return err == nil
}

// Parse splits an identifier into its components, checking the grammar,
// the embedded calendar timestamp, and the UUID version/variant.
func (g *Generator) Parse(id string) (Parsed, error) {
	fail := func(msg string) (Parsed, error) {
		return Parsed{}, taskstate.WrapError(taskstate.ErrInvalidIdentifier, msg, nil, map[string]any{
			"task_id": id,
		})
	}

	loc := uuid4Pattern.FindStringIndex(id)
	if loc == nil {
		return fail("no uuid4 component")
	}
	uuidStr := id[loc[0]:]

	head := id[:loc[0]]
	if len(head) < len(timestampLayout) {
		return fail("no timestamp component")
	}
	tsStr := head[len(head)-len(timestampLayout):]
	ts, err := time.ParseInLocation(timestampLayout, tsStr, time.UTC)
	if err != nil {
		return Parsed{}, taskstate.WrapError(taskstate.ErrInvalidIdentifier, "invalid timestamp", err, map[string]any{
			"task_id": id,
		})
	}

	// Between the prefix and the timestamp sits either nothing or a
	// single "_<taskType>" segment.
	label := head[:len(head)-len(timestampLayout)]
	if !strings.HasPrefix(label, g.prefix+"_") {
		return fail("prefix mismatch")
	}
	taskType := ""
	if rest := label[len(g.prefix)+1:]; rest != "" {
		if !strings.HasSuffix(rest, "_") {
			return fail("malformed task type segment")
		}
		taskType = rest[:len(rest)-1]
		if !labelPattern.MatchString(taskType) {
			return fail("invalid task type")
		}
	}

	parsedUUID, err := uuid.Parse(uuidStr)
	if err != nil {
		return Parsed{}, taskstate.WrapError(taskstate.ErrInvalidIdentifier, "invalid uuid", err, map[string]any{
			"task_id": id,
		})
	}
	if parsedUUID.Version() != 4 {
		return fail("uuid is not version 4")
	}

	return Parsed{
		Prefix:    g.prefix,
		TaskType:  taskType,
		Timestamp: ts,
		UUID:      parsedUUID,
	}, nil
}

// Generate is a one-shot helper that builds a throwaway generator.
func Generate(prefix, taskType string) (string, error) {
	g, err := New(prefix)
	if err != nil {
		return "", err
	}
	return g.Generate(taskType)
}

// Validate is a one-shot helper matching Generate.
func Validate(prefix, id string) bool {
	g, err := New(prefix)
	if err != nil {
		return false
	}
	return g.Validate(id)
}
