package index

import (
	"sort"
	"strconv"

	"github.com/starford/quill/internal/models"
)

// CollectRefs returns every reference field in fields, with the path of the
// field inside the document.
func CollectRefs(source string, fields map[string]models.Field) []Ref {
	var out []Ref
	collectFields(source, "", fields, &out)
	return out
}

func collectFields(source, prefix string, fields map[string]models.Field, out *[]Ref) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := name
		if prefix != "" {
			p = prefix + "." + name
		}
		collectField(source, p, fields[name], out)
	}
}

func collectField(source, p string, f models.Field, out *[]Ref) {
	switch v := f.(type) {
	case models.ReferenceField:
		*out = append(*out, Ref{Source: source, Target: v.RefID, FieldPath: p})
	case models.ObjectField:
		collectFields(source, p, v.Fields, out)
	case models.ModelField:
		collectFields(source, p, v.Fields, out)
	case models.ListField:
		for i, item := range v.Items {
			collectField(source, p+"["+strconv.Itoa(i)+"]", item, out)
		}
	}
}
