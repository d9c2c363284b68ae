package policy

import (
	"context"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func evaluate(t *testing.T, e *Engine, command, actor string) string {
	t.Helper()
	decision, err := e.Evaluate(context.Background(), map[string]interface{}{
		"command":       command,
		"actor":         actor,
		"owner":         "alice",
		"collaborators": []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return decision
}

func TestOwnerAllowedEverything(t *testing.T) {
	e := newTestEngine(t)
	for _, command := range []string{"play", "seek", "close", "enableCollaborativeMode", "addCollaborator", "addBookmark"} {
		if got := evaluate(t, e, command, "alice"); got != "allow" {
			t.Fatalf("owner denied %s: %s", command, got)
		}
	}
}

func TestCollaboratorAllowedPlaybackAndMarkers(t *testing.T) {
	e := newTestEngine(t)
	for _, command := range []string{"play", "pause", "stop", "seek", "setSpeed", "jumpTo", "addBookmark", "addAnnotation", "addSegment", "export"} {
		if got := evaluate(t, e, command, "bob"); got != "allow" {
			t.Fatalf("collaborator denied %s: %s", command, got)
		}
	}
}

func TestCollaboratorDeniedOwnerCommands(t *testing.T) {
	e := newTestEngine(t)
	for _, command := range []string{"close", "enableCollaborativeMode", "addCollaborator"} {
		if got := evaluate(t, e, command, "bob"); got != "deny" {
			t.Fatalf("collaborator allowed %s: %s", command, got)
		}
	}
}

func TestStrangerDenied(t *testing.T) {
	e := newTestEngine(t)
	for _, command := range []string{"play", "close", "addBookmark"} {
		if got := evaluate(t, e, command, "mallory"); got != "deny" {
			t.Fatalf("stranger allowed %s: %s", command, got)
		}
	}
}

func TestInvalidPolicyRejected(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package broken\n\ndecision :="); err == nil {
		t.Fatal("expected prepare error")
	}
}
