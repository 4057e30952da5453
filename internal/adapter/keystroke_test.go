package adapter

import (
	"reflect"
	"testing"
)

func TestBracketedPasteScenario2(t *testing.T) {
	got := BracketedPaste("hello @")
	want := "\x1b[200~hello @\x1b[201~"
	if got != want {
		t.Fatalf("BracketedPaste = %q, want %q", got, want)
	}
}

func TestParseControlTokenSelectSingle(t *testing.T) {
	tok := ParseControlToken(FormatPollSelect([]int{2}, false))
	want := ControlToken{Kind: ControlSelect, IDs: []int{2}, Multi: false}
	if !reflect.DeepEqual(tok, want) {
		t.Fatalf("tok = %+v, want %+v", tok, want)
	}
}

func TestParseControlTokenSelectMulti(t *testing.T) {
	tok := ParseControlToken(FormatPollSelect([]int{1, 3}, true))
	if tok.Kind != ControlSelect || !tok.Multi || len(tok.IDs) != 2 {
		t.Fatalf("tok = %+v", tok)
	}
}

func TestParseControlTokenNext(t *testing.T) {
	tok := ParseControlToken(FormatPollNext(4, 10))
	want := ControlToken{Kind: ControlNext, LastPos: 4, Count: 10}
	if !reflect.DeepEqual(tok, want) {
		t.Fatalf("tok = %+v, want %+v", tok, want)
	}
}

func TestParseControlTokenSubmitAndOther(t *testing.T) {
	if ParseControlToken("\x1b[POLL_SUBMIT]").Kind != ControlSubmit {
		t.Fatalf("expected ControlSubmit")
	}
	if ParseControlToken("\x1b[POLL_OTHER]").Kind != ControlOther {
		t.Fatalf("expected ControlOther")
	}
}

func TestParseControlTokenPlainTextIsNone(t *testing.T) {
	if ParseControlToken("hello").Kind != ControlNone {
		t.Fatalf("plain text should parse as ControlNone")
	}
}

func TestIsUploadPath(t *testing.T) {
	if !IsUploadPath("/home/u/.touchgrass/uploads/img.png") {
		t.Fatalf("expected upload path to be detected")
	}
	if IsUploadPath("/tmp/other.png") {
		t.Fatalf("unrelated path should not be detected as an upload")
	}
}
