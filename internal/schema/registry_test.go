package schema

import (
	"errors"
	"testing"
)

func TestValidateField(t *testing.T) {
	t.Parallel()

	reg := Default()

	tests := []struct {
		name    string
		table   string
		field   string
		want    LogicalType
		wantErr bool
	}{
		{name: "plain column", table: TableCalls, field: "started_at", want: TypeTimestamp},
		{name: "json root", table: TableCallFeatures, field: "features", want: TypeJSON},
		{name: "json path one level", table: TableCallFeatures, field: "features.summary", want: TypeJSONDynamic},
		{name: "json path deep unknown keys", table: TableCallFeatures, field: "features.summary.nonexistent.path", want: TypeJSONDynamic},
		{name: "path into non-json column", table: TableCalls, field: "started_at.sub", wantErr: true},
		{name: "unknown column", table: TableCalls, field: "durationz", wantErr: true},
		{name: "unknown table", table: "nope", field: "call_id", wantErr: true},
		{name: "empty field", table: TableCalls, field: "", wantErr: true},
		{name: "empty path segment", table: TableCallFeatures, field: "features..x", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := reg.ValidateField(tc.table, tc.field)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ValidateField(%q, %q) = %v, want error", tc.table, tc.field, got)
				}
				var fe *FieldError
				if !errors.As(err, &fe) {
					t.Fatalf("error type = %T, want *FieldError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateField(%q, %q): %v", tc.table, tc.field, err)
			}
			if got != tc.want {
				t.Fatalf("ValidateField(%q, %q) = %q, want %q", tc.table, tc.field, got, tc.want)
			}
		})
	}
}

func TestNewRegistry_Duplicates(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(
		Table{Name: "t", Columns: []Column{{Name: "a", Type: TypeText}}},
		Table{Name: "t", Columns: []Column{{Name: "a", Type: TypeText}}},
	); err == nil {
		t.Fatal("duplicate table accepted")
	}

	if _, err := NewRegistry(
		Table{Name: "t", Columns: []Column{
			{Name: "a", Type: TypeText},
			{Name: "a", Type: TypeInteger},
		}},
	); err == nil {
		t.Fatal("duplicate column accepted")
	}
}

func TestTable_ColumnNamesOrder(t *testing.T) {
	t.Parallel()

	reg := Default()
	tbl, err := reg.Get(TableCallMessages)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"call_id", "seq", "role", "text"}
	got := tbl.ColumnNames()
	if len(got) != len(want) {
		t.Fatalf("ColumnNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ColumnNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
