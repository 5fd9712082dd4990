package repository

import "testing"

func TestPageRequestNormalizeAndOffset(t *testing.T) {
	cases := []struct {
		in         PageRequest
		page, size int
		offset     int
	}{
		{in: PageRequest{}, page: 1, size: DefaultPageSize, offset: 0},
		{in: PageRequest{Page: 3, PageSize: 10}, page: 3, size: 10, offset: 20},
		{in: PageRequest{Page: -2, PageSize: MaxPageSize + 1}, page: 1, size: MaxPageSize, offset: 0},
	}
	for _, tc := range cases {
		got := tc.in.Normalize()
		if got.Page != tc.page || got.PageSize != tc.size || tc.in.Offset() != tc.offset {
			t.Fatalf("%+v: got %+v offset=%d", tc.in, got, tc.in.Offset())
		}
	}
}

func TestNewPageResult(t *testing.T) {
	res := NewPageResult[string](PageRequest{Page: 2, PageSize: 2}, []string{"E003", "E004"}, 5)
	if res.TotalPages != 3 || res.Page != 2 || len(res.Items) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	empty := NewPageResult[string](PageRequest{}, nil, 0)
	if empty.Items == nil || empty.TotalPages != 0 {
		t.Fatalf("expected empty non-nil items, got %+v", empty)
	}
}
