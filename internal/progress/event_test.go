package progress_test

import (
	"bytes"
	"testing"

	"github.com/Davygupta47/notebook/internal/progress"
)

func TestFromMilestoneWithoutPayload(t *testing.T) {
	extra := map[string]any{"sections": 4}
	ev := progress.FromMilestone(2, "outline", "planning sections", extra)

	m, ok := ev.(progress.Milestone)
	if !ok {
		t.Fatalf("expected Milestone, got %T", ev)
	}
	if m.Step != 2 || m.Name != "outline" || m.Extra["sections"] != 4 {
		t.Fatalf("unexpected milestone: %+v", m)
	}
}

func TestFromMilestoneExtractsDraftBytes(t *testing.T) {
	payload := []byte(`{"cells":[]}`)
	extra := map[string]any{progress.DraftBytesKey: payload, "cells": 7}

	ev := progress.FromMilestone(3, "draft", "draft notebook ready", extra)
	d, ok := ev.(progress.Draft)
	if !ok {
		t.Fatalf("expected Draft, got %T", ev)
	}
	if !bytes.Equal(d.Payload, payload) {
		t.Fatalf("unexpected payload %q", d.Payload)
	}
	if _, present := d.Extra[progress.DraftBytesKey]; present {
		t.Fatal("draft bytes should be stripped from extra")
	}
	if d.Extra["cells"] != 7 {
		t.Fatalf("expected remaining extra to survive, got %+v", d.Extra)
	}
	if _, present := extra[progress.DraftBytesKey]; !present {
		t.Fatal("caller map must not be mutated")
	}

	stripped := d.Stripped()
	if stripped.Step != 3 || stripped.Name != "draft" || stripped.Extra["cells"] != 7 {
		t.Fatalf("unexpected stripped milestone: %+v", stripped)
	}
}

func TestFromMilestoneOnlyDraftBytesLeavesNilExtra(t *testing.T) {
	ev := progress.FromMilestone(3, "draft", "", map[string]any{progress.DraftBytesKey: []byte("x")})
	d := ev.(progress.Draft)
	if d.Extra != nil {
		t.Fatalf("expected nil extra, got %+v", d.Extra)
	}
}

func TestFromMilestoneIgnoresNonByteDraftValue(t *testing.T) {
	extra := map[string]any{progress.DraftBytesKey: "bm90IGJ5dGVz", "cells": 3}
	ev := progress.FromMilestone(3, "draft", "", extra)
	m, ok := ev.(progress.Milestone)
	if !ok {
		t.Fatalf("expected Milestone for non-byte payload, got %T", ev)
	}
	if _, leaked := m.Extra[progress.DraftBytesKey]; leaked {
		t.Fatalf("non-byte draft payload kept in extra: %+v", m.Extra)
	}
	if m.Extra["cells"] != 3 {
		t.Fatalf("unrelated extra dropped: %+v", m.Extra)
	}
	if _, ok := extra[progress.DraftBytesKey]; !ok {
		t.Fatal("caller map was mutated")
	}

	only := progress.FromMilestone(3, "draft", "", map[string]any{progress.DraftBytesKey: 42})
	if m := only.(progress.Milestone); m.Extra != nil {
		t.Fatalf("expected nil extra, got %+v", m.Extra)
	}
}
