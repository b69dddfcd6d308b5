package records

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

func replayFixture() []ChangeEntry {
	create := createEntry("rec-1", "phone", KindProfile, "ana", map[string]FieldPatch{
		FieldName:      set(StringValue("Ana")),
		FieldAllergies: set(ListValue("pollen")),
	})
	rename := testEntry("rec-1", "phone", 2, VectorClock{"phone": 1}, time.Second, map[string]FieldPatch{
		FieldName: set(StringValue("Ana María")),
	})
	// Concurrente con rename: solo vio phone/1.
	concurrent := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 1}, 2*time.Second, map[string]FieldPatch{
		FieldName:      set(StringValue("Ana M.")),
		FieldAllergies: listAdd("peanuts"),
	})
	return []ChangeEntry{create, rename, concurrent}
}

// El replay debe dar byte a byte el mismo snapshot sin importar el orden
// de llegada de las entries.
func TestReplayDeterministic(t *testing.T) {
	fixture := replayFixture()
	orders := [][]ChangeEntry{
		{fixture[0], fixture[1], fixture[2]},
		{fixture[2], fixture[1], fixture[0]},
		{fixture[1], fixture[2], fixture[0]},
	}

	var first []byte
	for i, entries := range orders {
		state, err := Replay(entries, nil)
		if err != nil {
			t.Fatalf("orden %d: Replay: %v", i, err)
		}
		data, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("orden %d: marshal: %v", i, err)
		}
		if first == nil {
			first = data
			continue
		}
		if string(data) != string(first) {
			t.Fatalf("orden %d divergió:\n%s\nvs\n%s", i, data, first)
		}
	}
}

func TestReplaySnapshotGolden(t *testing.T) {
	state, err := Replay(replayFixture(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t)
	g.Assert(t, "profile_snapshot", data)
}

func TestReplayRequiresCreateEntry(t *testing.T) {
	orphan := testEntry("rec-1", "phone", 1, NewClock(), 0, map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	if _, err := Replay([]ChangeEntry{orphan}, nil); !errors.Is(err, ErrCausalGap) {
		t.Fatalf("quería ErrCausalGap sin create, got %v", err)
	}
}

func TestReplayEmptyIsNotFound(t *testing.T) {
	if _, err := Replay(nil, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("quería ErrNotFound, got %v", err)
	}
}

func TestOrderCausalDetectsGap(t *testing.T) {
	dangling := testEntry("rec-1", "laptop", 1, VectorClock{"phone": 5}, 0, map[string]FieldPatch{
		FieldName: set(StringValue("Ana")),
	})
	if _, err := OrderCausal([]ChangeEntry{dangling}, nil); !errors.Is(err, ErrCausalGap) {
		t.Fatalf("quería ErrCausalGap, got %v", err)
	}
}
