package router

import "strings"

// moreLabel is the trailing option a paged picker appends when more
// options remain beyond the current page (spec §4.7.1).
const moreLabel = "➡️ More"

// clearSelectedLabel appears in file pickers once a selection is non-empty.
const clearSelectedLabel = "🧹 Clear selected"

// cancelLabel is always present as the last option.
const cancelLabel = "❌ Cancel"

// Page is one rendered page of a paged picker: the option labels shown
// (including any trailing More/Clear/Cancel controls) and whether choosing
// the last one continues the picker (it's "More") or it's a plain choice.
type Page struct {
	Options    []string
	NextOffset int  // valid only if HasMore
	HasMore    bool
}

// BuildPage renders the page of options starting at offset, sized pageSize,
// out of the full option list. The More button consumes one of the
// pageSize slots, per spec §4.7.1: "the More button itself consumes one
// slot". NextOffset is monotonically increasing across successive pages
// and is absent (HasMore=false) once the last page is reached.
func BuildPage(all []string, offset, pageSize int) Page {
	if offset < 0 {
		offset = 0
	}
	if offset > len(all) {
		offset = len(all)
	}
	remaining := all[offset:]

	if len(remaining) <= pageSize {
		return Page{Options: append([]string(nil), remaining...)}
	}

	shown := remaining[:pageSize-1]
	nextOffset := offset + pageSize - 1
	out := append([]string(nil), shown...)
	out = append(out, moreLabel)
	return Page{Options: out, NextOffset: nextOffset, HasMore: true}
}

// IsMoreChoice reports whether the chosen option label is the More button.
func IsMoreChoice(choice string) bool { return choice == moreLabel }

// IsCancelChoice reports whether the chosen option label is Cancel.
func IsCancelChoice(choice string) bool { return choice == cancelLabel }

// IsClearSelectedChoice reports whether the chosen option label is the
// file-picker's "clear selected mentions" control.
func IsClearSelectedChoice(choice string) bool { return choice == clearSelectedLabel }

// BuildFilePickerPage renders a file-picker page: the paged file options,
// then "Clear selected" (only if selected is non-empty), then "Cancel".
func BuildFilePickerPage(all []string, offset, pageSize int, selected []string) Page {
	page := BuildPage(all, offset, pageSize)
	if len(selected) > 0 {
		page.Options = append(page.Options, clearSelectedLabel)
	}
	page.Options = append(page.Options, cancelLabel)
	return page
}

// ApplyMention prepends any pending file mentions to plain text, the way
// the next message after a file-picker selection is annotated (spec
// §4.7.1: "the next plain text message from the owner in that chat
// prepends the mentions").
func ApplyMention(mentions []string, text string) string {
	if len(mentions) == 0 {
		return text
	}
	prefix := strings.Join(mentions, " ")
	if text == "" {
		return prefix
	}
	return prefix + " " + text
}
