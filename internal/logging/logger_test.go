package logging

import (
	"testing"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

func TestInitIdempotentAndRestoresDefault(t *testing.T) {
	var calls int
	Init(func(level spiceapi.LogLevel, file string, line int, function string, msg string) {
		calls++
	})
	Current().Infof("hello %d", 1)
	Init(func(level spiceapi.LogLevel, file string, line int, function string, msg string) {
		calls++
	})
	Current().Infof("hello %d", 2)
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}

	Init(nil)
	if _, ok := Current().(*defaultLogger); !ok {
		t.Fatalf("expected default logger after Init(nil)")
	}
}
