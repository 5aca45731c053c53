package query

import (
	"reflect"
	"testing"

	"github.com/formbase/formbase/internal/schema"
)

func testSchema() *schema.DataSource {
	return &schema.DataSource{
		ID: "ds_widgets00001",
		Fields: []schema.Field{
			{Name: "name", Type: schema.FieldString},
			{Name: "qty", Type: schema.FieldNumber},
			{Name: "active", Type: schema.FieldBoolean},
		},
	}
}

func TestBuildFilterPinsDataSourceID(t *testing.T) {
	f := BuildFilter(testSchema(), nil)
	want := Condition{Field: "datasourceid", Op: OpEq, Value: "ds_widgets00001"}
	if len(f.All) != 1 || f.All[0] != want {
		t.Errorf("filter = %+v, want only the datasourceid pin", f.All)
	}
}

func TestBuildFilterStringFieldsUseContains(t *testing.T) {
	f := BuildFilter(testSchema(), map[string]string{"name": "wid"})
	if len(f.All) != 2 {
		t.Fatalf("conditions = %+v", f.All)
	}
	got := f.All[1]
	if got.Field != "name" || got.Op != OpContains || got.Value != "wid" {
		t.Errorf("condition = %+v, want contains match on name", got)
	}
}

func TestBuildFilterCoercesTypedFields(t *testing.T) {
	f := BuildFilter(testSchema(), map[string]string{"qty": "15", "active": "true"})

	byField := make(map[string]Condition)
	for _, c := range f.All {
		byField[c.Field] = c
	}
	if c := byField["qty"]; c.Op != OpEq || c.Value != float64(15) {
		t.Errorf("qty condition = %+v, want exact float match", c)
	}
	if c := byField["active"]; c.Op != OpEq || c.Value != true {
		t.Errorf("active condition = %+v, want exact bool match", c)
	}
}

func TestBuildFilterIgnoresUnknownKeys(t *testing.T) {
	f := BuildFilter(testSchema(), map[string]string{
		"nosuchfield": "x",
		"page":        "3",
		"limit":       "5",
		"sort":        "name:asc",
	})
	if len(f.All) != 1 {
		t.Errorf("unknown keys leaked into filter: %+v", f.All)
	}
}

func TestBuildSort(t *testing.T) {
	ds := testSchema()

	tests := []struct {
		spec string
		want Sort
	}{
		{"", DefaultSort()},
		{"name:asc", Sort{Field: "name", Desc: false}},
		{"name:desc", Sort{Field: "name", Desc: true}},
		{"qty", Sort{Field: "qty", Desc: true}},
		{"updatedAt:asc", Sort{Field: "updatedAt", Desc: false}},
		{"bogus:asc", DefaultSort()},
		{"::", DefaultSort()},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			if got := BuildSort(ds, tt.spec); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildSort(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestNewPageClamps(t *testing.T) {
	tests := []struct {
		page, limit int
		want        Page
	}{
		{0, 0, Page{1, 10}},
		{-3, -1, Page{1, 10}},
		{2, 25, Page{2, 25}},
	}
	for _, tt := range tests {
		if got := NewPage(tt.page, tt.limit); got != tt.want {
			t.Errorf("NewPage(%d, %d) = %+v, want %+v", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestParsePage(t *testing.T) {
	if got := ParsePage("3", "20"); got != (Page{3, 20}) {
		t.Errorf("ParsePage = %+v", got)
	}
	if got := ParsePage("", "junk"); got != (Page{1, 10}) {
		t.Errorf("ParsePage defaults = %+v", got)
	}
}

func TestSkip(t *testing.T) {
	if got := (Page{Page: 3, Limit: 10}).Skip(); got != 20 {
		t.Errorf("Skip() = %d, want 20", got)
	}
}

func TestPagesCeiling(t *testing.T) {
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 10, 3},
	}
	for _, tt := range tests {
		if got := Pages(tt.total, tt.limit); got != tt.want {
			t.Errorf("Pages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}
