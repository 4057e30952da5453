package router

import "testing"

func options(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a'+i%26)) + "-option"
	}
	return out
}

func TestBuildPageLastPageHasNoMore(t *testing.T) {
	page := BuildPage(options(3), 0, 5)
	if page.HasMore {
		t.Fatalf("last page should have no More button: %+v", page)
	}
	if len(page.Options) != 3 {
		t.Fatalf("options = %v, want all 3", page.Options)
	}
}

func TestBuildPageMonotonicOffsets(t *testing.T) {
	all := options(12)
	page1 := BuildPage(all, 0, 5)
	if !page1.HasMore || page1.NextOffset != 4 {
		t.Fatalf("page1 = %+v, want HasMore with NextOffset=4", page1)
	}
	page2 := BuildPage(all, page1.NextOffset, 5)
	if !page2.HasMore || page2.NextOffset <= page1.NextOffset {
		t.Fatalf("page2 NextOffset %d should exceed page1 NextOffset %d", page2.NextOffset, page1.NextOffset)
	}
	page3 := BuildPage(all, page2.NextOffset, 5)
	if page3.HasMore {
		t.Fatalf("page3 should be the last page: %+v", page3)
	}
}

func TestBuildFilePickerPageOmitsClearWhenEmpty(t *testing.T) {
	page := BuildFilePickerPage(options(2), 0, 5, nil)
	for _, o := range page.Options {
		if o == clearSelectedLabel {
			t.Fatalf("Clear selected should not appear with no selection: %v", page.Options)
		}
	}
	if page.Options[len(page.Options)-1] != cancelLabel {
		t.Fatalf("Cancel should be last: %v", page.Options)
	}
}

func TestBuildFilePickerPageShowsClearWhenNonEmpty(t *testing.T) {
	page := BuildFilePickerPage(options(2), 0, 5, []string{"a.go"})
	found := false
	for _, o := range page.Options {
		if o == clearSelectedLabel {
			found = true
		}
	}
	if !found {
		t.Fatalf("Clear selected should appear: %v", page.Options)
	}
}

func TestApplyMentionPrependsAndIsIdempotentOnEmpty(t *testing.T) {
	got := ApplyMention([]string{"@a.go", "@b.go"}, "fix this")
	if got != "@a.go @b.go fix this" {
		t.Fatalf("ApplyMention = %q", got)
	}
	if ApplyMention(nil, "fix this") != "fix this" {
		t.Fatalf("ApplyMention with no mentions should be a no-op")
	}
}
