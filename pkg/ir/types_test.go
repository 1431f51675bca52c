package ir

import "testing"

func TestSizeofIR(t *testing.T) {
	cases := []struct {
		name string
		typ  Type
		want int64
	}{
		{"i8", Tint{Width: 8}, 1},
		{"i32", Tint{Width: 32}, 4},
		{"i64", Tint{Width: 64}, 8},
		{"pointer", Tpointer{}, 8},
		{"void", Tvoid{}, 0},
		{"array", Tarray{Elem: Tint{Width: 32}, Count: 5}, 20},
	}
	for _, c := range cases {
		if got := Sizeof(c.typ); got != c.want {
			t.Errorf("Sizeof(%s) = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestTypeEqualIR(t *testing.T) {
	if !TypeEqual(Tint{Width: 32}, Tint{Width: 32}) {
		t.Error("i32 should equal i32")
	}
	if TypeEqual(Tint{Width: 32}, Tint{Width: 64}) {
		t.Error("i32 should not equal i64")
	}
	a := &Tstruct{Name: "s"}
	b := &Tstruct{Name: "s", Fields: []StructField{{Type: Tint{Width: 32}}}}
	if !TypeEqual(a, b) {
		t.Error("structs with the same name should be equal regardless of fields")
	}
	c := &Tstruct{Name: "other"}
	if TypeEqual(a, c) {
		t.Error("structs with different names should not be equal")
	}
	if !TypeEqual(nil, nil) {
		t.Error("nil should equal nil")
	}
	if TypeEqual(nil, Tvoid{}) {
		t.Error("nil should not equal a concrete type")
	}
}

func TestFunctionTypeEqualIR(t *testing.T) {
	f1 := Tfunction{Params: []Type{Tint{Width: 32}}, Return: Tint{Width: 32}}
	f2 := Tfunction{Params: []Type{Tint{Width: 32}}, Return: Tint{Width: 32}}
	f3 := Tfunction{Params: []Type{Tint{Width: 64}}, Return: Tint{Width: 32}}
	if !TypeEqual(f1, f2) {
		t.Error("identical function types should be equal")
	}
	if TypeEqual(f1, f3) {
		t.Error("function types with different params should not be equal")
	}
}

func TestLayoutFieldsNoTrailingPadding(t *testing.T) {
	fields, size, align := layoutFields([]Type{Tint{Width: 64}, Tint{Width: 8}})
	if fields[0].Offset != 0 || fields[1].Offset != 8 {
		t.Fatalf("unexpected offsets: %+v", fields)
	}
	if size != 9 {
		t.Fatalf("expected size 9 (no trailing padding), got %d", size)
	}
	if align != 8 {
		t.Fatalf("expected alignment 8, got %d", align)
	}
}
