package parser

import (
	"regexp"
	"strconv"
)

var (
	runningRe = regexp.MustCompile(`Command running in background with ID:\s*(\S+)\.\s*Output is being written to:\s*(\S+)`)
	stoppedRe = regexp.MustCompile(`Successfully stopped task:\s*(\S+)`)
	urlRe     = regexp.MustCompile(`https?://[^\s<>\]]+`)
	portFlagRe = regexp.MustCompile(`--port[= ](\d+)`)
	portColonRe = regexp.MustCompile(`:(\d{2,5})\b`)
)

// detectBackgroundJobFromText inspects a tool_result's plain text for the
// two recognized background-job phrases and returns the corresponding
// event, or nil if the text matches neither.
func detectBackgroundJobFromText(text, command string) *BackgroundJobEvent {
	if m := runningRe.FindStringSubmatch(text); m != nil {
		ev := &BackgroundJobEvent{
			TaskID:     m[1],
			Status:     "running",
			Command:    command,
			OutputFile: m[2],
			URLs:       harvestURLs(text, command),
		}
		return ev
	}
	if m := stoppedRe.FindStringSubmatch(text); m != nil {
		return &BackgroundJobEvent{TaskID: m[1], Status: "killed"}
	}
	return nil
}

// parseTaskNotification parses a <task-notification> XML-like fragment
// carried in a Dialect A queue-operation record.
func parseTaskNotification(text string) *BackgroundJobEvent {
	taskID := tagContent(text, "task-id")
	if taskID == "" {
		return nil
	}
	return &BackgroundJobEvent{
		TaskID:     taskID,
		Status:     tagContent(text, "status"),
		Summary:    tagContent(text, "summary"),
		OutputFile: tagContent(text, "output-file"),
	}
}

func tagContent(text, tag string) string {
	re := regexp.MustCompile(`<` + tag + `>(.*?)</` + tag + `>`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// harvestURLs collects explicit URLs from text, and — if none are present —
// infers a localhost URL from a port the command appears to bind.
func harvestURLs(text, command string) []string {
	if urls := urlRe.FindAllString(text, -1); len(urls) > 0 {
		return urls
	}
	if command == "" {
		return nil
	}
	if m := portFlagRe.FindStringSubmatch(command); m != nil {
		return []string{"http://localhost:" + m[1] + "/"}
	}
	if m := portColonRe.FindStringSubmatch(command); m != nil {
		if _, err := strconv.Atoi(m[1]); err == nil {
			return []string{"http://localhost:" + m[1] + "/"}
		}
	}
	return nil
}
