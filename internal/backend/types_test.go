package backend

import (
	"encoding/json"
	"testing"
)

func TestFlexIDUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want FlexID
	}{
		{`"abc-123"`, "abc-123"},
		{`"42"`, "42"},
		{`42`, "42"},
		{`9007199254740993`, "9007199254740993"}, // beyond float64 precision
		{`null`, ""},
	}
	for _, tc := range cases {
		var id FlexID
		if err := json.Unmarshal([]byte(tc.in), &id); err != nil {
			t.Errorf("unmarshal %s: %v", tc.in, err)
			continue
		}
		if id != tc.want {
			t.Errorf("unmarshal %s = %q, want %q", tc.in, id, tc.want)
		}
	}
}

func TestFlexIDUnmarshalRejectsGarbage(t *testing.T) {
	var id FlexID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("expected error for object value")
	}
}

func TestFlexIDMarshal(t *testing.T) {
	data, err := json.Marshal(FlexID("42"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"42"` {
		t.Errorf("marshal = %s, want \"42\"", data)
	}
}

func TestCoerceID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"42", "42"},
		{float64(42), "42"},
		{json.Number("42"), "42"},
		{int64(7), "7"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := CoerceID(tc.in); got != tc.want {
			t.Errorf("CoerceID(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
