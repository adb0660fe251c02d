package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3))

	out := buf.String()
	for _, want := range []string{"hello", "comp=test", "n=3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("must not panic")
}

func TestFormatTelegramSortsFields(t *testing.T) {
	got := formatTelegram([]byte(`{"level":"warn","message":"send failed","job":"x","chat_id":5,"time":"t"}`))
	want := "[WARN] send failed\n- chat_id=5\n- job=x"
	if got != want {
		t.Fatalf("formatTelegram = %q, want %q", got, want)
	}
}

func TestFieldOrderingAndNilErr(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("job", "bound"))
	log.Warn("done", Err(nil), String("job", "call"))

	out := buf.String()
	if strings.Contains(out, "err=") {
		t.Fatalf("nil error should add no field: %q", out)
	}
	if strings.LastIndex(out, "job=call") < strings.LastIndex(out, "job=bound") {
		t.Fatalf("per-call field should follow bound field: %q", out)
	}
}
