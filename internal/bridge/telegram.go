package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// InboundChat is one inbound Telegram message, already resolved to the
// shape the command router consumes (spec §4.7's Inbound).
type InboundChat struct {
	ChatID  string
	UserID  string
	Text    string
	IsGroup bool
}

// ChatHandler is called once per inbound chat message.
type ChatHandler func(InboundChat)

// Telegram is the chat adapter (spec §1's out-of-scope external
// collaborator) implemented against the Telegram Bot API. Standard
// library only — no external Telegram SDK.
//
// Unlike the single-chat h2 bridge this is adapted from, Telegram here is
// chat-agnostic: every method takes a chatID, and Start delivers messages
// from any chat the bot can see, leaving per-chat gating (pairing,
// linking) to the command router.
type Telegram struct {
	Token string

	// baseURL overrides the Telegram API base for testing.
	// If empty, defaults to "https://api.telegram.org".
	baseURL string

	// OnDeadChat is invoked once a chat has failed consecutiveFailureLimit
	// sends/polls in a row (spec §4.9's onDeadChat callback). Nil disables
	// the check.
	OnDeadChat func(chatID string)

	client http.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	offset   int64
	failures map[string]int
	// pinnedMessage tracks the Telegram message id backing a status board,
	// keyed by chatID+"\x00"+boardKey, so UpsertStatusBoard can edit in
	// place instead of spamming a new pinned message per update.
	pinnedMessage map[string]int64
}

const consecutiveFailureLimit = 5

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Close() error {
	t.Stop()
	return nil
}

func (t *Telegram) apiURL(method string) string {
	base := t.baseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.Token, method)
}

// Send posts a text message to chatID. Satisfies board.ChatSender and
// daemon.ChatNotifier.
func (t *Telegram) Send(chatID, text string) error {
	_, err := t.call("sendMessage", url.Values{
		"chat_id": {chatID},
		"text":    {text},
	})
	t.noteResult(chatID, err)
	return err
}

// InlineButton is one button in a poll/picker's inline keyboard row
// (spec §4.7's paged picker/poll widgets).
type InlineButton struct {
	Text string
	Data string // callback_data, round-tripped on tap
}

// SendPoll posts a message with an inline keyboard built from rows, one
// InlineButton per column, and returns the sent message id.
func (t *Telegram) SendPoll(chatID, text string, rows [][]InlineButton) (int64, error) {
	keyboard := make([][]map[string]string, len(rows))
	for i, row := range rows {
		cols := make([]map[string]string, len(row))
		for j, b := range row {
			cols[j] = map[string]string{"text": b.Text, "callback_data": b.Data}
		}
		keyboard[i] = cols
	}
	markup, err := json.Marshal(map[string]any{"inline_keyboard": keyboard})
	if err != nil {
		return 0, fmt.Errorf("telegram send poll: encode keyboard: %w", err)
	}
	result, err := t.call("sendMessage", url.Values{
		"chat_id":      {chatID},
		"text":         {text},
		"reply_markup": {string(markup)},
	})
	t.noteResult(chatID, err)
	if err != nil {
		return 0, err
	}
	return result.Result.MessageID, nil
}

// EditMessageText replaces the text (and optionally the inline keyboard,
// when rows is non-nil) of a previously sent message — used to re-page a
// poll without sending a new message.
func (t *Telegram) EditMessageText(chatID string, messageID int64, text string, rows [][]InlineButton) error {
	params := url.Values{
		"chat_id":    {chatID},
		"message_id": {strconv.FormatInt(messageID, 10)},
		"text":       {text},
	}
	if rows != nil {
		keyboard := make([][]map[string]string, len(rows))
		for i, row := range rows {
			cols := make([]map[string]string, len(row))
			for j, b := range row {
				cols[j] = map[string]string{"text": b.Text, "callback_data": b.Data}
			}
			keyboard[i] = cols
		}
		markup, err := json.Marshal(map[string]any{"inline_keyboard": keyboard})
		if err != nil {
			return fmt.Errorf("telegram edit message: encode keyboard: %w", err)
		}
		params.Set("reply_markup", string(markup))
	}
	_, err := t.call("editMessageText", params)
	t.noteResult(chatID, err)
	return err
}

// UpsertStatusBoard pins (or, on repeat calls, edits in place) a status
// board message for chatID/boardKey (spec §4.8). Satisfies board.ChatSender.
func (t *Telegram) UpsertStatusBoard(chatID, boardKey, body string) error {
	key := boardStateKey(chatID, boardKey)

	t.mu.Lock()
	messageID, exists := t.pinnedMessage[key]
	t.mu.Unlock()

	if exists {
		if err := t.EditMessageText(chatID, messageID, body, nil); err == nil {
			return nil
		}
		// Fall through: the pinned message may have been deleted out from
		// under us — recreate it.
	}

	result, err := t.call("sendMessage", url.Values{"chat_id": {chatID}, "text": {body}})
	t.noteResult(chatID, err)
	if err != nil {
		return err
	}
	messageID = result.Result.MessageID

	if _, err := t.call("pinChatMessage", url.Values{
		"chat_id":              {chatID},
		"message_id":           {strconv.FormatInt(messageID, 10)},
		"disable_notification": {"true"},
	}); err != nil {
		return fmt.Errorf("telegram pin status board: %w", err)
	}

	t.mu.Lock()
	if t.pinnedMessage == nil {
		t.pinnedMessage = map[string]int64{}
	}
	t.pinnedMessage[key] = messageID
	t.mu.Unlock()
	return nil
}

// ClearStatusBoard unpins and forgets chatID/boardKey's status board
// message. Satisfies board.ChatSender.
func (t *Telegram) ClearStatusBoard(chatID, boardKey string) error {
	key := boardStateKey(chatID, boardKey)

	t.mu.Lock()
	messageID, exists := t.pinnedMessage[key]
	delete(t.pinnedMessage, key)
	t.mu.Unlock()

	if !exists {
		return nil
	}
	_, err := t.call("unpinChatMessage", url.Values{
		"chat_id":    {chatID},
		"message_id": {strconv.FormatInt(messageID, 10)},
	})
	return err
}

func boardStateKey(chatID, boardKey string) string {
	return chatID + "\x00" + boardKey
}

// noteResult tracks consecutive send/poll failures per chat and fires
// OnDeadChat once the limit is crossed (spec §4.9).
func (t *Telegram) noteResult(chatID string, err error) {
	if t.OnDeadChat == nil {
		return
	}
	t.mu.Lock()
	if t.failures == nil {
		t.failures = map[string]int{}
	}
	if err == nil {
		delete(t.failures, chatID)
		t.mu.Unlock()
		return
	}
	t.failures[chatID]++
	dead := t.failures[chatID] >= consecutiveFailureLimit
	t.mu.Unlock()
	if dead {
		t.OnDeadChat(chatID)
	}
}

// Start begins long-polling getUpdates and calls handler for each inbound
// text message, from any chat.
func (t *Telegram) Start(ctx context.Context, handler ChatHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.poll(ctx, handler)
	return nil
}

// Stop cancels the polling goroutine and waits for it to exit.
func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

func (t *Telegram) poll(ctx context.Context, handler ChatHandler) {
	defer t.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := t.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			handler(InboundChat{
				ChatID:  strconv.FormatInt(u.Message.Chat.ID, 10),
				UserID:  strconv.FormatInt(u.Message.From.ID, 10),
				Text:    u.Message.Text,
				IsGroup: strings.HasPrefix(u.Message.Chat.Type, "group") || u.Message.Chat.Type == "supergroup",
			})
		}
	}
}

func (t *Telegram) getUpdates(ctx context.Context) ([]telegramUpdate, error) {
	params := url.Values{
		"offset":  {strconv.FormatInt(t.offset, 10)},
		"timeout": {"30"},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", t.apiURL("getUpdates")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result telegramGetUpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, fmt.Errorf("getUpdates: API error: %s", result.Description)
	}
	return result.Result, nil
}

// call performs a POST to a Telegram Bot API method and decodes a generic
// response envelope carrying an optional single message result.
func (t *Telegram) call(method string, params url.Values) (telegramResponse, error) {
	resp, err := t.client.PostForm(t.apiURL(method), params)
	if err != nil {
		return telegramResponse{}, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return telegramResponse{}, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !result.OK {
		return telegramResponse{}, fmt.Errorf("telegram %s: API error: %s", method, result.Description)
	}
	return result, nil
}

// Unexported types for JSON parsing.

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      telegramMessage `json:"result"`
}

type telegramGetUpdatesResponse struct {
	OK          bool             `json:"ok"`
	Description string           `json:"description,omitempty"`
	Result      []telegramUpdate `json:"result"`
}

type telegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *telegramMessage `json:"message,omitempty"`
}

type telegramMessage struct {
	MessageID int64        `json:"message_id"`
	Text      string       `json:"text"`
	Chat      telegramChat `json:"chat"`
	From      telegramUser `json:"from"`
}

type telegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type telegramUser struct {
	ID int64 `json:"id"`
}
