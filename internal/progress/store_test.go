package progress

import "testing"

type fakeState struct {
	mode  string
	phase string
}

func (s fakeState) Mode() string { return s.mode }

func TestStore_SetAndSnapshot(t *testing.T) {
	store := NewStore()

	if store.ModeState() != nil {
		t.Fatal("fresh store should have nil state")
	}

	store.SetModeState(fakeState{mode: "elected", phase: "responding"})

	got, ok := store.ModeState().(fakeState)
	if !ok {
		t.Fatalf("unexpected state type %T", store.ModeState())
	}
	if got.phase != "responding" {
		t.Errorf("phase = %q, want responding", got.phase)
	}
}

func TestStore_UpdateModeState(t *testing.T) {
	store := NewStore()
	store.SetModeState(fakeState{mode: "elected", phase: "responding"})

	store.UpdateModeState(func(s State) State {
		prev := s.(fakeState)
		prev.phase = "voting"
		return prev
	})

	if got := store.ModeState().(fakeState).phase; got != "voting" {
		t.Errorf("phase after update = %q, want voting", got)
	}
}

func TestStore_InitStreamingResetsState(t *testing.T) {
	store := NewStore()
	store.SetModeState(fakeState{mode: "elected"})

	store.InitStreaming([]string{"inst-a", "inst-b"}, map[string]string{
		"inst-a": "model-a",
		"inst-b": "model-b",
	})

	if store.ModeState() != nil {
		t.Error("InitStreaming should clear prior mode state")
	}
	if got := store.ModelFor("inst-b"); got != "model-b" {
		t.Errorf("ModelFor(inst-b) = %q, want model-b", got)
	}
	ids := store.InstanceIDs()
	if len(ids) != 2 || ids[0] != "inst-a" {
		t.Errorf("unexpected roster: %v", ids)
	}
}

func TestStore_SubscribeReceivesTransitions(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	store.SetModeState(fakeState{mode: "tournament", phase: "generating"})
	store.SetModeState(fakeState{mode: "tournament", phase: "competing"})

	first := <-ch
	second := <-ch
	if first.(fakeState).phase != "generating" || second.(fakeState).phase != "competing" {
		t.Errorf("unexpected transition order: %v then %v", first, second)
	}
}

func TestStore_SlowSubscriberDrops(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	// Overflow the subscription buffer; the store must never block.
	for i := 0; i < 200; i++ {
		store.SetModeState(fakeState{mode: "chained", phase: "responding"})
	}

	if len(ch) != cap(ch) {
		t.Errorf("expected full channel, got %d of %d", len(ch), cap(ch))
	}
}

func TestStore_CancelClosesChannel(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()

	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	store.SetModeState(fakeState{mode: "elected"})
}
