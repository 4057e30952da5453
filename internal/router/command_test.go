package router

import "testing"

func TestParseCommandPlain(t *testing.T) {
	cmd, ok := ParseCommand("/kill", "tgbot")
	if !ok || cmd.Name != "/kill" {
		t.Fatalf("ParseCommand = %+v, %v", cmd, ok)
	}
}

func TestParseCommandStripsBotMention(t *testing.T) {
	cmd, ok := ParseCommand("/start@tgbot claude myproj", "tgbot")
	if !ok || cmd.Name != "/start" || len(cmd.Args) != 2 {
		t.Fatalf("ParseCommand = %+v, %v", cmd, ok)
	}
}

func TestParseCommandRejectsOtherBotMention(t *testing.T) {
	_, ok := ParseCommand("/start@otherbot", "tgbot")
	if ok {
		t.Fatalf("expected mismatched bot mention to be rejected")
	}
}

func TestParseCommandTgAlias(t *testing.T) {
	cmd, ok := ParseCommand("tg kill", "tgbot")
	if !ok || cmd.Name != "/kill" {
		t.Fatalf("ParseCommand = %+v, %v", cmd, ok)
	}
}

func TestParseCommandPlainTextIsNotACommand(t *testing.T) {
	_, ok := ParseCommand("hello world", "tgbot")
	if ok {
		t.Fatalf("plain text should not parse as a command")
	}
}
