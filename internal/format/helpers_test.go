package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func loadDefs(t *testing.T, doc string) []*Definition {
	t.Helper()
	defs, err := LoadBytes([]byte(doc), false)
	require.NoError(t, err)
	return defs
}

func buildRegistry(t *testing.T, docs ...string) *Registry {
	t.Helper()
	var defs []*Definition
	for _, doc := range docs {
		defs = append(defs, loadDefs(t, doc)...)
	}
	reg, err := Build(defs, Options{BaseTime: testBase})
	require.NoError(t, err)
	return reg
}

func attrOf(attrs []Attr, typ AttrType) (Attr, bool) {
	for _, a := range attrs {
		if a.Type == typ {
			return a, true
		}
	}
	return Attr{}, false
}

func valueOf(values []LogicalValue, name string) (LogicalValue, bool) {
	for _, v := range values {
		if v.Meta.Name == name {
			return v, true
		}
	}
	return LogicalValue{}, false
}

func orderNames(reg *Registry) []string {
	var names []string
	for _, d := range reg.Order() {
		names = append(names, d.Name)
	}
	return names
}
