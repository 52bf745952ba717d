package memory_test

import (
	"testing"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

func TestFocusSlot_SetGetClear(t *testing.T) {
	slot := memory.NewFocusSlot()

	if _, ok := slot.Get(); ok {
		t.Fatal("Fresh slot should be empty")
	}

	rec := core.NewRecord("current input", core.RecordContext{})
	slot.Set(rec)

	got, ok := slot.Get()
	if !ok {
		t.Fatal("Expected slot to hold a record after Set")
	}
	if got.ID != rec.ID {
		t.Errorf("Expected record %s, got %s", rec.ID, got.ID)
	}

	slot.Clear()
	if _, ok := slot.Get(); ok {
		t.Error("Slot should be empty after Clear")
	}
}

func TestFocusSlot_HandsOutCopies(t *testing.T) {
	slot := memory.NewFocusSlot()

	rec := core.NewRecord("stable", core.RecordContext{})
	slot.Set(rec)

	rec.Content = "writer scribble"
	got, ok := slot.Get()
	if !ok {
		t.Fatal("Expected slot to hold a record")
	}
	if got.Content != "stable" {
		t.Errorf("Slot copy changed to %q", got.Content)
	}

	got.Content = "reader scribble"
	again, _ := slot.Get()
	if again.Content != "stable" {
		t.Errorf("Reader mutation leaked into the slot: %q", again.Content)
	}
}

func TestFocusSlot_Apply(t *testing.T) {
	slot := memory.NewFocusSlot()

	rec := core.NewRecord("late vector", core.RecordContext{})
	slot.Set(rec)

	slot.Apply(rec.ID, func(r *core.Record) {
		r.Embedding = []float32{1, 0}
	})
	got, _ := slot.Get()
	if !got.HasEmbedding() {
		t.Error("Apply should have attached the embedding")
	}

	// Apply targets the current occupant only.
	slot.Set(core.NewRecord("newer", core.RecordContext{}))
	slot.Apply(rec.ID, func(r *core.Record) {
		t.Error("Apply ran for a record no longer in the slot")
	})
}

func TestFocusSlot_SetReplaces(t *testing.T) {
	slot := memory.NewFocusSlot()

	first := core.NewRecord("first", core.RecordContext{})
	second := core.NewRecord("second", core.RecordContext{})
	slot.Set(first)
	slot.Set(second)

	got, ok := slot.Get()
	if !ok || got.ID != second.ID {
		t.Error("Set should replace the previous occupant")
	}
}
