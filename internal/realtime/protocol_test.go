package realtime

import (
	"encoding/json"
	"testing"
)

func TestParseJoinPayload(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "number", raw: `5`, want: 5},
		{name: "numeric string", raw: `"12"`, want: 12},
		{name: "padded string", raw: `" 12 "`, want: 12},
		{name: "zero", raw: `0`, wantErr: true},
		{name: "negative", raw: `-3`, wantErr: true},
		{name: "fraction", raw: `1.5`, wantErr: true},
		{name: "word", raw: `"abc"`, wantErr: true},
		{name: "object", raw: `{"userId":5}`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := ParseJoinPayload(json.RawMessage(testCase.raw))
			if testCase.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("expected %d, got %d", testCase.want, got)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	raw, err := EncodeFrame(EventJoinUserRoom, 5)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Event != EventJoinUserRoom || string(frame.Data) != "5" {
		t.Fatalf("unexpected frame %+v", frame)
	}

	if _, err := DecodeFrame([]byte(`{"data":1}`)); err == nil {
		t.Fatalf("expected missing event name to fail")
	}
	if _, err := DecodeFrame([]byte("  ")); err == nil {
		t.Fatalf("expected empty frame to fail")
	}
	if _, err := EncodeFrame(" ", nil); err == nil {
		t.Fatalf("expected blank event name to fail")
	}
}
