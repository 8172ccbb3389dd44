package document

// FieldKind is the shape of a schema field.
type FieldKind int

const (
	// KindString is a scalar string field. Its default is "".
	KindString FieldKind = iota
	// KindList is an ordered list of objects described by Field.Items.
	// Its default is an empty list.
	KindList
)

// Field describes one named field of a schema object.
type Field struct {
	Name string
	Kind FieldKind
	// Optional fields are left out of the conformed value unless populated.
	Optional bool
	// Items describes the objects of a KindList field.
	Items []Field
}

// Schema is a static description of an object type.
type Schema struct {
	Fields []Field
}

// TimelineSchema is the document shape the model is asked to produce: either
// a single rejection message or a list of timeline entries.
var TimelineSchema = Schema{
	Fields: []Field{
		{Name: "rejection", Kind: KindString, Optional: true},
		{Name: "events", Kind: KindList, Items: []Field{
			{Name: "timeRange", Kind: KindString},
			{Name: "description", Kind: KindString},
		}},
	},
}

// Defaults returns the value every field takes when nothing has been seen.
func (s Schema) Defaults() map[string]any {
	return conformObject(nil, s.Fields)
}

// Conform coerces an arbitrary decoded JSON value into the schema. It never
// fails: wrong-typed fields take their default, unknown fields are dropped.
func (s Schema) Conform(v any) map[string]any {
	obj, _ := v.(map[string]any)
	return conformObject(obj, s.Fields)
}

func conformObject(obj map[string]any, fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		raw, present := obj[f.Name]
		switch f.Kind {
		case KindString:
			s, ok := raw.(string)
			if f.Optional {
				if present && ok && s != "" {
					out[f.Name] = s
				}
				continue
			}
			out[f.Name] = s
		case KindList:
			out[f.Name] = conformList(raw, f.Items)
		}
	}
	return out
}

// conformList keeps object items that have at least one field started.
func conformList(raw any, items []Field) []any {
	list := []any{}
	elems, ok := raw.([]any)
	if !ok {
		return list
	}
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok || !anyStarted(obj, items) {
			continue
		}
		list = append(list, conformObject(obj, items))
	}
	return list
}

func anyStarted(obj map[string]any, fields []Field) bool {
	for _, f := range fields {
		if _, ok := obj[f.Name]; ok {
			return true
		}
	}
	return false
}
