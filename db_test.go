package cropsight

import (
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	t.Cleanup(db.Close)

	return db
}

func TestDBPutGet(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	proto := &Prototype{
		Label:       "Powdery Mildew",
		Vector:      []float32{0.25, -0.5, 0.125, 1},
		SampleCount: 7,
		CreatedAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		EstAccuracy: 0.92,
	}
	if err := db.Put(ctx, proto); err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	got, err := db.Get(ctx, "powdery mildew")
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := proto.Label, got.Label; expected != actual {
		t.Errorf("Expected label %q, got %q", expected, actual)
	}
	if expected, actual := proto.SampleCount, got.SampleCount; expected != actual {
		t.Errorf("Expected sample count %d, got %d", expected, actual)
	}
	if expected, actual := proto.EstAccuracy, got.EstAccuracy; expected != actual {
		t.Errorf("Expected accuracy %f, got %f", expected, actual)
	}
	if expected, actual := len(proto.Vector), len(got.Vector); expected != actual {
		t.Fatalf("Expected %d-dim vector, got %d", expected, actual)
	}
	for i := range proto.Vector {
		if proto.Vector[i] != got.Vector[i] {
			t.Errorf("Vector[%d] = %f, want %f", i, got.Vector[i], proto.Vector[i])
		}
	}
}

func TestDBGetNotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Get(t.Context(), "cutworm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDBDuplicateLabel(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	if err := db.Put(ctx, &Prototype{Label: "fire blight", Vector: []float32{1}}); err != nil {
		t.Fatalf("Unexpected error %s", err)
	}

	err := db.Put(ctx, &Prototype{Label: "Fire Blight", Vector: []float32{2}})
	var dupErr *DuplicateClassError
	if !errors.As(err, &dupErr) {
		t.Fatalf("Expected DuplicateClassError, got %v", err)
	}
	if expected, actual := "Fire Blight", dupErr.Label; expected != actual {
		t.Errorf("Expected label %q in error, got %q", expected, actual)
	}

	n, err := db.Count(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := 1, n; expected != actual {
		t.Errorf("Expected %d prototype, got %d", expected, actual)
	}
}

func TestDBAll(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()

	for _, label := range []string{"spider mite", "anthracnose", "downy mildew"} {
		err := db.Put(ctx, &Prototype{Label: label, Vector: []float32{1, 2}, CreatedAt: time.Now().UTC()})
		if err != nil {
			t.Fatalf("Unexpected error %s", err)
		}
	}

	protos, err := db.All(ctx)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	want := []string{"anthracnose", "downy mildew", "spider mite"}
	if expected, actual := len(want), len(protos); expected != actual {
		t.Fatalf("Expected %d prototypes, got %d", expected, actual)
	}
	for i, label := range want {
		if protos[i].Label != label {
			t.Errorf("protos[%d].Label = %q, want %q", i, protos[i].Label, label)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159, -123.456}
	blob, err := encodeVector(in)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := len(in)*4, len(blob); expected != actual {
		t.Errorf("Expected %d byte blob, got %d", expected, actual)
	}

	out, err := decodeVector(blob)
	if err != nil {
		t.Fatalf("Unexpected error %s", err)
	}
	if expected, actual := len(in), len(out); expected != actual {
		t.Fatalf("Expected %d elements, got %d", expected, actual)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}
