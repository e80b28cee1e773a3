package main

import (
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/goeda/internal/store"
)

func TestSelectCheckpointsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	if toDelete[0].RunID != "run4" || toDelete[1].RunID != "run1" {
		t.Errorf("Expected run4 then run1, got %s and %s", toDelete[0].RunID, toDelete[1].RunID)
	}
}

func TestSelectCheckpointsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)},
	}

	toDelete := selectCheckpointsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}
	for _, info := range toDelete {
		if info.RunID != "run4" && info.RunID != "run1" {
			t.Errorf("Expected only the oldest runs, got %s", info.RunID)
		}
	}
}

func TestSelectCheckpointsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.CheckpointInfo{
		{RunID: "run1", SavedAt: now.AddDate(0, 0, -10)},
		{RunID: "run2", SavedAt: now.AddDate(0, 0, -5)},
		{RunID: "run3", SavedAt: now.AddDate(0, 0, -1)},
		{RunID: "run4", SavedAt: now.AddDate(0, 0, -30)},
		{RunID: "run5", SavedAt: now.AddDate(0, 0, -2)},
	}

	// both policies select run4 and run1; each appears once
	toDelete := selectCheckpointsForDeletion(infos, 3, 7, now)
	if len(toDelete) != 2 {
		t.Errorf("Expected 2 checkpoints to delete, got %d", len(toDelete))
	}

	if got := selectCheckpointsForDeletion(infos, 10, 0, now); len(got) != 0 {
		t.Errorf("Nothing should be deleted when keeping more than exist, got %d", len(got))
	}
}

func TestShortID(t *testing.T) {
	if shortID("abc") != "abc" {
		t.Error("Short ids should be unchanged")
	}
	long := strings.Repeat("x", 36)
	if got := shortID(long); got != strings.Repeat("x", 12)+"..." {
		t.Errorf("Unexpected truncation %q", got)
	}
}

func TestConfirm(t *testing.T) {
	var out strings.Builder
	if !confirm(strings.NewReader("y\n"), &out) {
		t.Error("y should confirm")
	}
	if confirm(strings.NewReader("\n"), &out) {
		t.Error("Empty answer should not confirm")
	}
	if !strings.Contains(out.String(), "[y/N]") {
		t.Error("Prompt should be written")
	}
}

func TestCheckpointsListCommand_NoCheckpoints(t *testing.T) {
	out, err := execute(t, "checkpoints", "list", "--data-dir", t.TempDir())
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if !strings.Contains(out, "No checkpoints found.") {
		t.Errorf("Unexpected output %q", out)
	}
}
