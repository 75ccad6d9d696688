package live

import (
	"fmt"
	"testing"
	"time"

	"github.com/atmostrack/atmostrack/internal/models"
)

func tuple(deviceID, readingID string) Tuple {
	return Tuple{
		Reading: models.Reading{
			ID:         readingID,
			DeviceID:   deviceID,
			ReceivedAt: time.Now(),
		},
	}
}

func TestUpdateAndLatest(t *testing.T) {
	s := NewStore(10)

	s.Update(tuple("dev1", "r1"))
	s.Update(tuple("dev1", "r2"))

	got, ok := s.Latest("dev1")
	if !ok {
		t.Fatal("Latest returned ok=false")
	}
	if got.Reading.ID != "r2" {
		t.Errorf("Latest = %s, want r2", got.Reading.ID)
	}

	if _, ok := s.Latest("unknown"); ok {
		t.Error("Latest for unknown device should return ok=false")
	}
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 8; i++ {
		s.Update(tuple("dev1", fmt.Sprintf("r%d", i)))
	}

	all := s.History("dev1", 0)
	if len(all) != 5 {
		t.Fatalf("len(history) = %d, want 5 (bounded)", len(all))
	}
	if all[0].ID != "r7" {
		t.Errorf("history[0] = %s, want r7 (newest first)", all[0].ID)
	}

	last2 := s.History("dev1", 2)
	if len(last2) != 2 {
		t.Fatalf("len(History(2)) = %d, want 2", len(last2))
	}
	if last2[0].ID != "r7" || last2[1].ID != "r6" {
		t.Errorf("History(2) = [%s %s], want [r7 r6]", last2[0].ID, last2[1].ID)
	}
}

func TestApplyClassificationPatchesByIdentity(t *testing.T) {
	s := NewStore(10)
	s.Update(tuple("dev1", "r1"))
	s.Update(tuple("dev1", "r2"))

	res := models.ClassificationResult{Label: models.SourceVehicle, Confidence: 0.9}
	patched, ok := s.ApplyClassification("dev1", "r1", res)
	if !ok {
		t.Fatal("ApplyClassification returned ok=false")
	}
	if patched.Reading.ID != "r1" {
		t.Errorf("patched reading = %s, want r1 (by identity, not latest)", patched.Reading.ID)
	}
	if patched.Classification == nil || patched.Classification.Label != models.SourceVehicle {
		t.Error("patched tuple missing classification")
	}

	// The latest (r2) must be untouched by r1's enrichment.
	latest, _ := s.Latest("dev1")
	if latest.Classification != nil {
		t.Error("latest tuple classified by an older reading's enrichment")
	}
}

func TestApplyClassificationEvictedReading(t *testing.T) {
	s := NewStore(2)
	s.Update(tuple("dev1", "r1"))
	s.Update(tuple("dev1", "r2"))
	s.Update(tuple("dev1", "r3")) // evicts r1

	if _, ok := s.ApplyClassification("dev1", "r1", models.ClassificationResult{Label: models.SourceClean}); ok {
		t.Error("ApplyClassification for evicted reading should return ok=false")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := NewStore(10)
	ch, cancel := s.Subscribe(4)
	defer cancel()

	s.Update(tuple("dev1", "r1"))

	select {
	case got := <-ch:
		if got.Reading.ID != "r1" {
			t.Errorf("received %s, want r1", got.Reading.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive update")
	}
}

func TestSubscribeRebroadcastOnClassification(t *testing.T) {
	s := NewStore(10)
	s.Update(tuple("dev1", "r1"))

	ch, cancel := s.Subscribe(4)
	defer cancel()

	s.ApplyClassification("dev1", "r1", models.ClassificationResult{Label: models.SourceIndustry, Confidence: 0.8})

	select {
	case got := <-ch:
		if got.Classification == nil || got.Classification.Label != models.SourceIndustry {
			t.Error("re-broadcast tuple missing classification")
		}
	case <-time.After(time.Second):
		t.Fatal("no re-broadcast after classification")
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	s := NewStore(100)
	_, cancel := s.Subscribe(1) // tiny buffer, never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Update(tuple("dev1", fmt.Sprintf("r%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion blocked on a slow subscriber")
	}
}

func TestOnline(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", time.Second, true},
		{"just under threshold", StaleAfter - time.Millisecond, true},
		{"exactly at threshold", StaleAfter, false},
		{"stale", time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Online(now, now.Add(-tt.age)); got != tt.want {
				t.Errorf("Online(age=%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}
