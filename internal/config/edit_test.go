package config

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/settingsd/internal/config/layer"
)

func TestSetValue(t *testing.T) {
	tests := []struct {
		name string
		doc  layer.Document
		path string
		raw  string
		want layer.Document
	}{
		{
			name: "new top-level key",
			doc:  layer.Document{"a": "1"},
			path: "model",
			raw:  `"opus"`,
			want: layer.Document{"a": "1", "model": "opus"},
		},
		{
			name: "nested key created",
			doc:  layer.Document{},
			path: "env.DEBUG",
			raw:  `"1"`,
			want: layer.Document{"env": map[string]any{"DEBUG": "1"}},
		},
		{
			name: "nested key beside siblings",
			doc:  layer.Document{"env": map[string]any{"A": "x"}},
			path: "env.B",
			raw:  `"y"`,
			want: layer.Document{"env": map[string]any{"A": "x", "B": "y"}},
		},
		{
			name: "number kept exact",
			doc:  nil,
			path: "cleanupPeriodDays",
			raw:  `30`,
			want: layer.Document{"cleanupPeriodDays": json.Number("30")},
		},
		{
			name: "object value",
			doc:  layer.Document{"permissions": map[string]any{"deny": []any{"x"}}},
			path: "permissions",
			raw:  `{"allow":["Bash"]}`,
			want: layer.Document{"permissions": map[string]any{"allow": []any{"Bash"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SetValue(tt.doc, tt.path, []byte(tt.raw))
			if err != nil {
				t.Fatalf("SetValue error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SetValue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetValue_Invalid(t *testing.T) {
	if _, err := SetValue(layer.Document{}, "", []byte(`1`)); !errors.Is(err, ErrInvalidEdit) {
		t.Errorf("empty key error = %v, want ErrInvalidEdit", err)
	}
	if _, err := SetValue(layer.Document{}, "a", []byte(`{`)); !errors.Is(err, ErrInvalidEdit) {
		t.Errorf("invalid value error = %v, want ErrInvalidEdit", err)
	}
}

func TestDeleteValue(t *testing.T) {
	doc := layer.Document{"a": "1", "env": map[string]any{"A": "x", "B": "y"}}

	got, err := DeleteValue(doc, "env.A")
	if err != nil {
		t.Fatalf("DeleteValue error = %v", err)
	}
	want := layer.Document{"a": "1", "env": map[string]any{"B": "y"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeleteValue = %v, want %v", got, want)
	}

	got, err = DeleteValue(got, "missing")
	if err != nil {
		t.Fatalf("DeleteValue(missing) error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeleteValue(missing) = %v, want %v", got, want)
	}

	if _, ok := doc["env"].(map[string]any)["A"]; !ok {
		t.Error("input document was modified")
	}
}

func TestService_Edit(t *testing.T) {
	paths := testPaths(t)
	svc := New(paths)
	ctx := context.Background()

	set := func(path, raw string) EditFunc {
		return func(doc layer.Document) (layer.Document, error) {
			return SetValue(doc, path, []byte(raw))
		}
	}

	if err := svc.Edit(ctx, layer.LocationProject, set("model", `"opus"`)); err != nil {
		t.Fatalf("Edit on missing file error = %v", err)
	}
	if err := svc.Edit(ctx, layer.LocationProject, set("env.A", `"1"`)); err != nil {
		t.Fatalf("Edit error = %v", err)
	}

	snap, _ := svc.Snapshot(ctx, layer.LocationProject)
	want := layer.Document{"model": "opus", "env": map[string]any{"A": "1"}}
	if !reflect.DeepEqual(snap.Document(), want) {
		t.Errorf("document = %v, want %v", snap.Document(), want)
	}
}

func TestService_Edit_FailedFileUntouched(t *testing.T) {
	paths := testPaths(t)
	svc := New(paths)
	writeRaw(t, paths, layer.LocationUser, `{"broken": `)

	called := false
	err := svc.Edit(context.Background(), layer.LocationUser, func(doc layer.Document) (layer.Document, error) {
		called = true
		return doc, nil
	})
	if err == nil {
		t.Fatal("expected error for unparsable file")
	}
	if called {
		t.Error("edit function should not run on a failed read")
	}

	snap, _ := svc.Snapshot(context.Background(), layer.LocationUser)
	if snap.State() != StateFailed {
		t.Errorf("state = %v, want failed (file rewritten?)", snap.State())
	}
}

func TestService_Edit_EnterpriseRejected(t *testing.T) {
	svc := New(testPaths(t))
	err := svc.Edit(context.Background(), layer.LocationEnterprise, func(doc layer.Document) (layer.Document, error) {
		return doc, nil
	})
	if !errors.Is(err, ErrNotWritable) {
		t.Errorf("error = %v, want ErrNotWritable", err)
	}
}
