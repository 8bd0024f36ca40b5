package services

import "testing"

func TestListOptions_OrderBy(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want string
	}{
		{"default", ListOptions{}, "created_at DESC, id ASC"},
		{"known column asc", ListOptions{SortBy: "name", SortOrder: "asc"}, "name ASC, id ASC"},
		{"unknown column", ListOptions{SortBy: "name; DROP TABLE devices"}, "created_at DESC, id ASC"},
		{"bad order", ListOptions{SortBy: "address", SortOrder: "sideways"}, "address DESC, id ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.opts.normalized().orderBy(deviceSorts, "created_at")
			if got != tt.want {
				t.Errorf("orderBy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListOptions_Normalized(t *testing.T) {
	tests := []struct {
		in         ListOptions
		wantLimit  int
		wantOffset int
	}{
		{ListOptions{}, DefaultPageSize, 0},
		{ListOptions{Limit: 5000, Offset: -3}, MaxPageSize, 0},
		{ListOptions{Limit: 10, Offset: 20}, 10, 20},
	}
	for _, tt := range tests {
		got := tt.in.normalized()
		if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
			t.Errorf("normalized(%+v) = limit %d offset %d, want %d %d",
				tt.in, got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}
