package adapter

import (
	"math"
	"testing"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.75, 0, 1e-8, -0.0001}

	got := BlobToVector(VectorToBlob(vec))
	if len(got) != len(vec) {
		t.Fatalf("length: got %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: got %v, want %v (bitwise)", i, got[i], vec[i])
		}
	}
}

func TestVectorToBlob_FourBytesPerComponent(t *testing.T) {
	blob := VectorToBlob(make([]float32, 384))
	if len(blob) != 384*4 {
		t.Errorf("blob length: got %d, want %d", len(blob), 384*4)
	}
}

func TestNormalize_UnitNorm(t *testing.T) {
	v := Normalize([]float32{3, 4, 0})

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("norm: got %v, want 1", math.Sqrt(norm))
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Errorf("component %d: got %v, want 0", i, x)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched dims", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(Cosine(tt.a, tt.b))
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_EqualsDotForUnitVectors(t *testing.T) {
	a := Normalize([]float32{0.2, 0.5, -0.3, 0.7})
	b := Normalize([]float32{-0.1, 0.4, 0.9, 0.2})

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if math.Abs(float64(Cosine(a, b))-dot) > 1e-5 {
		t.Errorf("cosine %v != dot %v for unit vectors", Cosine(a, b), dot)
	}
}
