package task

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tk := New()

	if tk.ID == "" {
		t.Error("expected task to have an ID")
	}
	if tk.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, tk.Status)
	}
	if tk.Kind != KindSingle {
		t.Errorf("expected kind %s, got %s", KindSingle, tk.Kind)
	}
	if tk.NumClips != 1 {
		t.Errorf("expected 1 clip, got %d", tk.NumClips)
	}
	if tk.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestTask_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"queued to in_progress", StatusQueued, StatusInProgress, false},
		{"queued to failed", StatusQueued, StatusFailed, false},
		{"in_progress to completed", StatusInProgress, StatusCompleted, false},
		{"in_progress to failed", StatusInProgress, StatusFailed, false},
		// Illegal transitions
		{"queued to completed", StatusQueued, StatusCompleted, true},
		{"completed to queued", StatusCompleted, StatusQueued, true},
		{"completed to in_progress", StatusCompleted, StatusInProgress, true},
		{"completed to failed", StatusCompleted, StatusFailed, true},
		{"failed to in_progress", StatusFailed, StatusInProgress, true},
		{"failed to completed", StatusFailed, StatusCompleted, true},
		{"in_progress to queued", StatusInProgress, StatusQueued, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := NewWithID("test")
			tk.Status = tt.from

			err := tk.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestTask_Start(t *testing.T) {
	tk := New()
	beforeStart := time.Now()

	if err := tk.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tk.Status != StatusInProgress {
		t.Errorf("expected status %s, got %s", StatusInProgress, tk.Status)
	}
	if tk.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestTask_Complete(t *testing.T) {
	tk := New()
	_ = tk.Start()
	tk.SetProgress(40)

	if err := tk.Complete("s3://bucket/results/abc.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tk.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, tk.Status)
	}
	if tk.ResultRef != "s3://bucket/results/abc.mp4" {
		t.Errorf("unexpected result ref %q", tk.ResultRef)
	}
	if tk.Progress != 100 {
		t.Errorf("expected progress 100, got %d", tk.Progress)
	}
	if tk.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestTask_Fail(t *testing.T) {
	tk := New()
	_ = tk.Start()

	errMsg := "provider exploded"
	if err := tk.Fail(errMsg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tk.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, tk.Status)
	}
	if tk.ErrorMessage != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, tk.ErrorMessage)
	}
	if tk.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set on failure")
	}
}

func TestTask_TerminalIsFinal(t *testing.T) {
	tk := New()
	_ = tk.Start()
	_ = tk.Complete("ref")

	if err := tk.Fail("late failure"); err == nil {
		t.Error("expected error failing a completed task")
	}
	if tk.Status != StatusCompleted {
		t.Errorf("terminal state reverted to %s", tk.Status)
	}
}

func TestTask_SetGenerationID(t *testing.T) {
	tk := New()

	if err := tk.SetGenerationID("gen-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.GenerationID != "gen-1" {
		t.Errorf("expected gen-1, got %q", tk.GenerationID)
	}

	if err := tk.SetGenerationID("gen-2"); err == nil {
		t.Error("expected error on second SetGenerationID")
	}
	if tk.GenerationID != "gen-1" {
		t.Errorf("generation ID mutated to %q", tk.GenerationID)
	}
}

func TestTask_SetProgress_Monotonic(t *testing.T) {
	tk := New()
	_ = tk.Start()

	tk.SetProgress(30)
	tk.SetProgress(10)
	if tk.Progress != 30 {
		t.Errorf("progress regressed to %d", tk.Progress)
	}

	tk.SetProgress(75)
	if tk.Progress != 75 {
		t.Errorf("expected progress 75, got %d", tk.Progress)
	}

	tk.SetProgress(150)
	if tk.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", tk.Progress)
	}
}

func TestTask_Clone(t *testing.T) {
	tk := New()
	tk.Prompt = "a cat surfing"
	tk.ReferenceImage = []byte{1, 2, 3}

	clone := tk.Clone()
	clone.Prompt = "changed"
	clone.ReferenceImage[0] = 9

	if tk.Prompt != "a cat surfing" {
		t.Error("clone mutation leaked into original prompt")
	}
	if tk.ReferenceImage[0] != 1 {
		t.Error("clone mutation leaked into original reference image")
	}
}
