package pagination

import "testing"

type item struct{ id string }

func TestBuildCursorPageInfo(t *testing.T) {
	data := []*item{{"3"}, {"2"}, {"1"}}
	info := BuildCursorPageInfo(data, 2, func(i *item) string { return i.id })
	if !info.HasMore || info.NextPageToken != "2" {
		t.Fatalf("unexpected page info %+v", info)
	}

	info = BuildCursorPageInfo(data[:2], 2, func(i *item) string { return i.id })
	if info.HasMore || info.NextPageToken != "" {
		t.Fatalf("expected last page, got %+v", info)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatalf("expected invalid token error")
	}
}
