package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeyDerivation(t *testing.T) {
	tests := []struct {
		kind     Kind
		lat, lng float64
		want     string
	}{
		{KindDemographicProfile, 40.712823, -74.006012, "demographic_profile:40.7128,-74.0060"},
		{KindViability, 10.5, 106.7, "viability:10.5000,106.7000"},
		{KindCompetitive, 0, 0, "competitive:0.0000,0.0000"},
	}

	for _, tt := range tests {
		if got := Key(tt.kind, tt.lat, tt.lng); got != tt.want {
			t.Errorf("Key(%s, %v, %v) = %q, want %q", tt.kind, tt.lat, tt.lng, got, tt.want)
		}
	}
}

func TestKeyRoundingCollapsesJitter(t *testing.T) {
	a := Key(KindViability, 40.71282, -74.00601)
	b := Key(KindViability, 40.712824, -74.006012)
	if a != b {
		t.Errorf("jittered coordinates should share a key: %q vs %q", a, b)
	}
}

func TestKeyWithRadius(t *testing.T) {
	got := KeyWithRadius(KindCompetitive, 40.7128, -74.0060, 5)
	want := "competitive:40.7128,-74.0060:r5.0"
	if got != want {
		t.Errorf("KeyWithRadius = %q, want %q", got, want)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit")
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("get = %q/%v/%v", v, ok, err)
	}
}

func TestMemoryTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("expired entry should miss")
	}
}

func TestMemoryMulti(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	entries := map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}
	if err := m.SetMulti(ctx, entries, 0); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetMulti(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("GetMulti = %v", got)
	}
}

func TestTypedHelpers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	type profile struct {
		Score      float64 `json:"score"`
		Population int     `json:"population"`
	}

	in := profile{Score: 72.5, Population: 14000}
	if err := SetTyped(ctx, m, "p", in, 0); err != nil {
		t.Fatal(err)
	}

	out, ok, err := GetTyped[profile](ctx, m, "p")
	if err != nil || !ok {
		t.Fatalf("get = %v/%v", ok, err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if _, ok, _ := GetTyped[profile](ctx, m, "absent"); ok {
		t.Error("unexpected hit for absent key")
	}
}
