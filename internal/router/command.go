// Package router implements the command router (spec §4.7): normalizing
// chat commands, dispatching them in priority order, and the paged
// picker/poll state machine (§4.7.1).
package router

import "strings"

// Command is a normalized slash command plus its argument words.
type Command struct {
	Name string
	Args []string
}

// ParseCommand recognizes Telegram's "/cmd@BotName" form and the
// "tg <cmd>" alias form, normalizing both into a plain "/cmd" Command. It
// returns ok=false for ordinary (non-command) text.
func ParseCommand(text, botName string) (Command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, false
	}

	fields := strings.Fields(text)
	head := fields[0]

	switch {
	case strings.HasPrefix(head, "/"):
		name := head[1:]
		if at := strings.IndexByte(name, '@'); at >= 0 {
			mention := name[at+1:]
			if botName != "" && !strings.EqualFold(mention, botName) {
				return Command{}, false
			}
			name = name[:at]
		}
		if name == "" {
			return Command{}, false
		}
		return Command{Name: "/" + strings.ToLower(name), Args: fields[1:]}, true

	case strings.EqualFold(head, "tg") && len(fields) > 1:
		name := strings.ToLower(fields[1])
		return Command{Name: "/" + name, Args: fields[2:]}, true

	default:
		return Command{}, false
	}
}
