package wire

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	state := map[string]any{
		"On":         true,
		"Brightness": float64(80),
		"Name":       "Living Room",
	}

	data, err := Encode(state)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded) != 3 {
		t.Fatalf("decoded %d keys, want 3", len(decoded))
	}
	if decoded["On"] != true {
		t.Errorf("On = %v, want true", decoded["On"])
	}
	if decoded["Brightness"] != float64(80) {
		t.Errorf("Brightness = %v, want 80", decoded["Brightness"])
	}
	if decoded["Name"] != "Living Room" {
		t.Errorf("Name = %v, want Living Room", decoded["Name"])
	}
}

func TestEncodeEmptyState(t *testing.T) {
	data, err := Encode(map[string]any{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Encode(empty) = %s, want {}", data)
	}
}

func TestDecodeEmptyObject(t *testing.T) {
	decoded, err := Decode([]byte("{}"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded %d keys, want 0", len(decoded))
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"array", `[1, 2, 3]`},
		{"string", `"hello"`},
		{"number", `42`},
		{"bool", `true`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, ErrNotObject) {
				t.Errorf("Decode(%s) error = %v, want ErrNotObject", tt.payload, err)
			}
		})
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"On": tru`))
	if err == nil {
		t.Fatal("Decode accepted malformed JSON")
	}
	if errors.Is(err, ErrNotObject) {
		t.Error("syntax error should not be reported as ErrNotObject")
	}
}

func TestDecodeNestedValues(t *testing.T) {
	decoded, err := Decode([]byte(`{"Color": {"H": 120, "S": 50}, "Tags": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := decoded["Color"].(map[string]any); !ok {
		t.Errorf("Color = %T, want map", decoded["Color"])
	}
	if _, ok := decoded["Tags"].([]any); !ok {
		t.Errorf("Tags = %T, want slice", decoded["Tags"])
	}
}
