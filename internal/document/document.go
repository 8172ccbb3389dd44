// Package document turns the cumulative text of a streamed model response
// into a timeline document that is valid at every point of the stream.
//
// Materialization is a pure function of the text seen so far: the caller
// keeps appending fragments to one buffer and re-materializes the whole
// buffer. Escape sequences split across fragments therefore need no special
// handling, and replaying the same text always gives the same document.
package document

import (
	"encoding/json"
	"strings"
)

// Entry is one moment of a timeline.
type Entry struct {
	TimeRange   string `json:"timeRange"`
	Description string `json:"description"`
}

// Document is the materialized value of TimelineSchema. Events is never nil;
// Rejection is nil unless the model produced a non-empty rejection message.
type Document struct {
	Rejection *string `json:"rejection,omitempty"`
	Events    []Entry `json:"events"`
}

// Variant is the branch a document belongs to. It is one of Pending,
// Rejection or Timeline.
type Variant interface {
	variant()
}

// Pending is a document with no content from either branch yet.
type Pending struct{}

// Rejection is a document explaining why no timeline was produced.
type Rejection struct {
	Text string
}

// Timeline is a document carrying timeline entries.
type Timeline struct {
	Entries []Entry
}

func (Pending) variant()   {}
func (Rejection) variant() {}
func (Timeline) variant()  {}

// Interface compliance checks.
var (
	_ Variant = Pending{}
	_ Variant = Rejection{}
	_ Variant = Timeline{}
)

// Variant reports which branch the document currently shows. A rejection
// wins over entries should a confused model emit both.
func (d Document) Variant() Variant {
	switch {
	case d.Rejection != nil:
		return Rejection{Text: *d.Rejection}
	case len(d.Events) > 0:
		return Timeline{Entries: d.Events}
	default:
		return Pending{}
	}
}

// Empty reports whether the document still holds only schema defaults.
func (d Document) Empty() bool {
	_, pending := d.Variant().(Pending)
	return pending
}

// Default returns the document every stream starts from.
func Default() Document {
	return fromValue(TimelineSchema.Defaults())
}

// Materializer derives schema-conforming values from cumulative text.
type Materializer struct {
	schema Schema
}

// NewMaterializer returns a Materializer for the given schema.
func NewMaterializer(schema Schema) *Materializer {
	return &Materializer{schema: schema}
}

// Value returns the best value derivable from text, conformed to the schema.
// It never fails; unusable text yields the schema defaults.
func (m *Materializer) Value(text string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err == nil {
		if _, ok := v.(map[string]any); ok {
			return m.schema.Conform(v)
		}
	}
	v, _ = parsePartial(text)
	return m.schema.Conform(v)
}

var timelineMaterializer = NewMaterializer(TimelineSchema)

// Materialize returns the timeline document described by the cumulative text.
func Materialize(text string) Document {
	return fromValue(timelineMaterializer.Value(text))
}

// fromValue reads a value conformed to TimelineSchema. Every type assertion
// holds by construction.
func fromValue(v map[string]any) Document {
	doc := Document{Events: []Entry{}}
	if s, ok := v["rejection"].(string); ok {
		doc.Rejection = &s
	}
	items, _ := v["events"].([]any)
	for _, it := range items {
		obj := it.(map[string]any)
		doc.Events = append(doc.Events, Entry{
			TimeRange:   obj["timeRange"].(string),
			Description: obj["description"].(string),
		})
	}
	return doc
}
