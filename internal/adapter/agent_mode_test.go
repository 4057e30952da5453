package adapter

import (
	"reflect"
	"testing"
)

func TestTurnArgsClaudeFirstTurn(t *testing.T) {
	a := &agentRunner{session: &session{cfg: Config{Vendor: VendorClaude}}}
	got := a.turnArgs("hello")
	want := []string{"--print", "--output-format", "stream-json", "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs = %v, want %v", got, want)
	}
}

func TestTurnArgsClaudeResumesAfterFirstTurn(t *testing.T) {
	a := &agentRunner{session: &session{cfg: Config{Vendor: VendorClaude, SessionID: "r-abc123"}}}
	a.resume = "r-abc123"
	got := a.turnArgs("again")
	want := []string{"--print", "--output-format", "stream-json", "--resume", "r-abc123", "again"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs = %v, want %v", got, want)
	}
}

func TestTurnArgsCodex(t *testing.T) {
	a := &agentRunner{session: &session{cfg: Config{Vendor: VendorCodex}}}
	got := a.turnArgs("hi")
	want := []string{"exec", "--json", "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs = %v, want %v", got, want)
	}

	a.resume = "r-xyz"
	got = a.turnArgs("follow-up")
	want = []string{"exec", "--json", "resume", "r-xyz", "follow-up"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs with resume = %v, want %v", got, want)
	}
}

func TestTurnArgsPi(t *testing.T) {
	a := &agentRunner{session: &session{cfg: Config{Vendor: VendorPi}}}
	got := a.turnArgs("hi")
	want := []string{"--mode", "rpc", "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs = %v, want %v", got, want)
	}
}

func TestTurnArgsDefaultAppendsConfiguredArgs(t *testing.T) {
	a := &agentRunner{session: &session{cfg: Config{Vendor: VendorKimi, Args: []string{"--flag"}}}}
	got := a.turnArgs("hi")
	want := []string{"--flag", "hi"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("turnArgs = %v, want %v", got, want)
	}
}
