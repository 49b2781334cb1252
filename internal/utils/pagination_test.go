package utils

import "testing"

func TestCalculatePagination(t *testing.T) {
	tests := []struct {
		name           string
		page, limit    int
		total          int64
		from, to, last int
		hasMore        bool
	}{
		{"empty", 1, 25, 0, 0, 0, 0, false},
		{"first page", 1, 10, 35, 1, 10, 4, true},
		{"last partial page", 4, 10, 35, 31, 35, 4, false},
		{"page below one", 0, 10, 5, 1, 5, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := CalculatePagination(tt.page, tt.limit, tt.total)
			if meta.From != tt.from || meta.To != tt.to || meta.LastPage != tt.last || meta.HasMore != tt.hasMore {
				t.Fatalf("got %+v", meta)
			}
		})
	}
}
