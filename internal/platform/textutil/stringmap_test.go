package textutil

import (
	"reflect"
	"testing"
)

func TestCompactStringMap(t *testing.T) {
	t.Run("trims and drops empty entries", func(t *testing.T) {
		input := map[string]string{
			" kind ":   " deposit ",
			"order_id": "ord_1",
			"empty":    " ",
			" ":        "ignored",
		}
		expected := map[string]string{"kind": "deposit", "order_id": "ord_1"}

		if got := CompactStringMap(input, MapLimits{}); !reflect.DeepEqual(got, expected) {
			t.Fatalf("expected %#v got %#v", expected, got)
		}
	})

	t.Run("truncates on rune boundary", func(t *testing.T) {
		got := CompactStringMap(map[string]string{"note": "café au lait"}, MapLimits{MaxValueLength: 4})
		if got["note"] != "caf" {
			t.Fatalf("expected multi-byte rune to be dropped whole, got %q", got["note"])
		}
	})

	t.Run("keeps smallest keys when over capacity", func(t *testing.T) {
		got := CompactStringMap(map[string]string{"c": "3", "a": "1", "b": "2"}, MapLimits{MaxEntries: 2})
		expected := map[string]string{"a": "1", "b": "2"}
		if !reflect.DeepEqual(got, expected) {
			t.Fatalf("expected %#v got %#v", expected, got)
		}
	})

	t.Run("nil when nothing survives", func(t *testing.T) {
		if got := CompactStringMap(map[string]string{"": "x"}, MapLimits{}); got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
	})
}
