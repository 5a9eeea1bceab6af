package cache

import (
	"reflect"
	"testing"
	"time"
)

func TestResults_GetAfterSet_SameOrderedList(t *testing.T) {
	r := NewResults(2 * time.Minute)
	key := Key{Mode: "daily_wins", Context: "fixed auth bug", Mood: "hyped", Angle: "shipping tomorrow"}

	want := []string{"option one", "option two", "option three"}
	r.Set(key, want)

	got, ok := r.Get(key)
	if !ok {
		t.Fatalf("expected hit")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get = %v; want %v (same order)", got, want)
	}
}

func TestResults_MissOnDifferentKey(t *testing.T) {
	r := NewResults(2 * time.Minute)
	r.Set(Key{Mode: "daily_wins", Context: "a"}, []string{"x"})

	if _, ok := r.Get(Key{Mode: "lesson_learned", Context: "a"}); ok {
		t.Fatalf("expected miss for different mode")
	}
	if _, ok := r.Get(Key{Mode: "daily_wins", Context: "b"}); ok {
		t.Fatalf("expected miss for different context")
	}
}

func TestResults_ExpiresAfterTTL(t *testing.T) {
	r := NewResults(20 * time.Millisecond)
	key := Key{Mode: "daily_wins", Context: "ctx", Mood: "m", Angle: "a"}
	r.Set(key, []string{"x"})

	if _, ok := r.Get(key); !ok {
		t.Fatalf("expected hit before TTL")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := r.Get(key); ok {
		t.Fatalf("expected miss after TTL")
	}
}

func TestResults_LastWriteWins(t *testing.T) {
	r := NewResults(2 * time.Minute)
	key := Key{Mode: "daily_wins", Context: "ctx"}
	r.Set(key, []string{"first"})
	r.Set(key, []string{"second"})

	got, ok := r.Get(key)
	if !ok || len(got) != 1 || got[0] != "second" {
		t.Fatalf("Get = %v, %v; want [second]", got, ok)
	}
}
