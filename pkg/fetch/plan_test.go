package fetch

import (
	"reflect"
	"testing"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		span     Range
		partSize int64
		want     []Range
	}{
		{
			name:     "uneven last part",
			span:     Range{0, 10},
			partSize: 4,
			want:     []Range{{0, 4}, {4, 8}, {8, 10}},
		},
		{
			name:     "ten million bytes in four million byte parts",
			span:     Range{0, 10_000_000},
			partSize: 4_000_000,
			want:     []Range{{0, 4_000_000}, {4_000_000, 8_000_000}, {8_000_000, 10_000_000}},
		},
		{
			name:     "exact multiple",
			span:     Range{0, 8},
			partSize: 4,
			want:     []Range{{0, 4}, {4, 8}},
		},
		{
			name:     "span smaller than part",
			span:     Range{3, 5},
			partSize: 100,
			want:     []Range{{3, 5}},
		},
		{
			name:     "offset span",
			span:     Range{5, 12},
			partSize: 3,
			want:     []Range{{5, 8}, {8, 11}, {11, 12}},
		},
		{
			name:     "single byte parts",
			span:     Range{0, 3},
			partSize: 1,
			want:     []Range{{0, 1}, {1, 2}, {2, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := Plan(tt.span, tt.partSize)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if len(parts) != len(tt.want) {
				t.Fatalf("got %d parts, want %d", len(parts), len(tt.want))
			}
			for i, p := range parts {
				if p.Index != i {
					t.Errorf("part %d: index = %d", i, p.Index)
				}
				if p.Range != tt.want[i] {
					t.Errorf("part %d: range = %s, want %s", i, p.Range, tt.want[i])
				}
				if p.State != PartPending || p.Attempts != 0 {
					t.Errorf("part %d: state = %s, attempts = %d", i, p.State, p.Attempts)
				}
			}
		})
	}
}

func TestPlanPartitionsSpan(t *testing.T) {
	for _, span := range []Range{{0, 1}, {0, 97}, {13, 1000}, {1 << 20, 1<<20 + 12345}} {
		for _, partSize := range []int64{1, 2, 7, 64, 1000, 1 << 16} {
			parts, err := Plan(span, partSize)
			if err != nil {
				t.Fatalf("Plan(%s, %d): %v", span, partSize, err)
			}

			next := span.Start
			for i, p := range parts {
				if p.Range.Start != next {
					t.Fatalf("Plan(%s, %d): part %d starts at %d, want %d", span, partSize, i, p.Range.Start, next)
				}
				if p.Range.Len() <= 0 || p.Range.Len() > partSize {
					t.Fatalf("Plan(%s, %d): part %d has length %d", span, partSize, i, p.Range.Len())
				}
				if i < len(parts)-1 && p.Range.Len() != partSize {
					t.Fatalf("Plan(%s, %d): non-final part %d is short", span, partSize, i)
				}
				next = p.Range.End
			}
			if next != span.End {
				t.Fatalf("Plan(%s, %d): parts end at %d", span, partSize, next)
			}

			again, _ := Plan(span, partSize)
			if !reflect.DeepEqual(parts, again) {
				t.Fatalf("Plan(%s, %d) is not deterministic", span, partSize)
			}
		}
	}
}

func TestPlanInvalid(t *testing.T) {
	tests := []struct {
		name     string
		span     Range
		partSize int64
	}{
		{"zero part size", Range{0, 10}, 0},
		{"negative part size", Range{0, 10}, -1},
		{"empty span", Range{5, 5}, 4},
		{"reversed span", Range{6, 5}, 4},
		{"negative start", Range{-1, 5}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.span, tt.partSize)
			if KindOf(err) != KindInvalidRange {
				t.Fatalf("kind = %s, want invalid_range (err: %v)", KindOf(err), err)
			}
		})
	}
}
