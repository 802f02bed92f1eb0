package source

import (
	"testing"
)

func TestSpanCover(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want Span
	}{
		{
			name: "overlapping",
			a:    Span{File: 1, Start: 10, End: 20},
			b:    Span{File: 1, Start: 15, End: 30},
			want: Span{File: 1, Start: 10, End: 30},
		},
		{
			name: "contained",
			a:    Span{File: 1, Start: 10, End: 20},
			b:    Span{File: 1, Start: 12, End: 14},
			want: Span{File: 1, Start: 10, End: 20},
		},
		{
			name: "different files keep receiver",
			a:    Span{File: 1, Start: 10, End: 20},
			b:    Span{File: 2, Start: 0, End: 40},
			want: Span{File: 1, Start: 10, End: 20},
		},
		{
			name: "empty receiver takes other",
			a:    Span{File: 1},
			b:    Span{File: 1, Start: 3, End: 5},
			want: Span{File: 1, Start: 3, End: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Cover(tt.b); got != tt.want {
				t.Errorf("Cover = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanLen(t *testing.T) {
	if got := (Span{Start: 4, End: 9}).Len(); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
	if got := (Span{Start: 9, End: 4}).Len(); got != 0 {
		t.Errorf("inverted Len = %d, want 0", got)
	}
	if !(Span{Start: 3, End: 3}).Empty() {
		t.Error("zero-width span must be empty")
	}
}
