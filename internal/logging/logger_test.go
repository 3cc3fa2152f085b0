package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestForScopesComponentField(t *testing.T) {
	entry := For("widget")
	if got := entry.Data["component"]; got != "widget" {
		t.Fatalf("expected component field %q, got %v", "widget", got)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	if err := Init(Config{Level: "debug", ToConsole: true}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	levelAfterFirst := L().GetLevel()

	// A second call must be a no-op even with a different level requested.
	if err := Init(Config{Level: "error", ToConsole: true}); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if L().GetLevel() != levelAfterFirst {
		t.Fatalf("expected second Init call to be a no-op, level changed from %v to %v", levelAfterFirst, L().GetLevel())
	}
}

func TestLReturnsSharedLogger(t *testing.T) {
	if L() == nil {
		t.Fatal("expected L() to return a non-nil logger")
	}
	var _ *logrus.Logger = L()
}
