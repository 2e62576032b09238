package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
	"github.com/nextlevelbuilder/tgmirror/internal/relay"
)

const (
	// readyPollInterval is the pause between readiness probes during the
	// startup handshake.
	readyPollInterval = 2 * time.Second

	// downloadMaxBytes caps media downloads (20MB, Bot API limit).
	downloadMaxBytes int64 = 20 * 1024 * 1024
)

// Bot connects to Telegram via the Bot API using long polling and fans
// inbound channel posts out to per-chat subscribers. It implements
// relay.Client.
type Bot struct {
	bot   *telego.Bot
	token string
	http  *http.Client

	mu           sync.RWMutex
	newHandlers  map[int64][]func(relay.Message)
	editHandlers map[int64][]func(relay.Message)

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Bot from config.
func New(cfg config.TelegramConfig) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is not configured")
	}

	var opts []telego.BotOption
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		opts = append(opts, telego.WithHTTPClient(httpClient))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{
		bot:          bot,
		token:        cfg.Token,
		http:         httpClient,
		newHandlers:  make(map[int64][]func(relay.Message)),
		editHandlers: make(map[int64][]func(relay.Message)),
	}, nil
}

// WaitUntilReady probes the API until the bot identity resolves or ctx
// expires. Callers bound ctx with the configured startup timeout; expiry is
// a fatal startup condition.
func (b *Bot) WaitUntilReady(ctx context.Context) error {
	for {
		me, err := b.bot.GetMe(ctx)
		if err == nil {
			slog.Info("telegram bot ready", "username", me.Username)
			return nil
		}
		slog.Debug("telegram not ready yet", "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram readiness handshake: %w", ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

// SubscribeNewMessage registers a handler for new messages in chatID.
func (b *Bot) SubscribeNewMessage(chatID int64, handler func(relay.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newHandlers[chatID] = append(b.newHandlers[chatID], handler)
}

// SubscribeEditedMessage registers a handler for edited messages in chatID.
func (b *Bot) SubscribeEditedMessage(chatID int64, handler func(relay.Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.editHandlers[chatID] = append(b.editHandlers[chatID], handler)
}

// Start begins long polling for updates. Channel posts and group messages
// are both observed so sources may be broadcast channels or forum
// supergroups.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("starting telegram relay client (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"edited_message",
			"channel_post",
			"edited_channel_post",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				b.route(update)
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine to exit so
// Telegram releases the getUpdates lock before a new instance starts.
func (b *Bot) Stop(_ context.Context) error {
	slog.Info("stopping telegram relay client")
	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// route fans one update out to the subscribers of its chat.
func (b *Bot) route(update telego.Update) {
	switch {
	case update.ChannelPost != nil:
		b.deliver(b.newHandlers, update.ChannelPost)
	case update.Message != nil:
		b.deliver(b.newHandlers, update.Message)
	case update.EditedChannelPost != nil:
		b.deliver(b.editHandlers, update.EditedChannelPost)
	case update.EditedMessage != nil:
		b.deliver(b.editHandlers, update.EditedMessage)
	default:
		slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
	}
}

func (b *Bot) deliver(handlers map[int64][]func(relay.Message), msg *telego.Message) {
	b.mu.RLock()
	subs := handlers[msg.Chat.ID]
	b.mu.RUnlock()
	if len(subs) == 0 {
		slog.Debug("no subscriber for chat", "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
		return
	}

	m := fromTelego(msg)
	for _, h := range subs {
		h(m)
	}
}

// Send delivers one outgoing request: a text message, a single media item,
// or an album via sendMediaGroup. Returned ids are in send order.
func (b *Bot) Send(ctx context.Context, chatID int64, out relay.Outgoing) ([]int, error) {
	chat := tu.ID(chatID)
	threadID := resolveThreadIDForSend(out.TopicID)

	var replyParams *telego.ReplyParameters
	if out.ReplyToID > 0 {
		replyParams = &telego.ReplyParameters{MessageID: out.ReplyToID}
	}

	switch {
	case len(out.Media) == 0:
		params := &telego.SendMessageParams{
			ChatID:          chat,
			Text:            out.Text,
			Entities:        toEntities(out.Text, out.Spans),
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		msg, err := b.bot.SendMessage(ctx, params)
		if err != nil {
			return nil, wrapSendError(err)
		}
		return []int{msg.MessageID}, nil

	case len(out.Media) == 1:
		msg, err := b.sendSingleMedia(ctx, chat, threadID, replyParams, out)
		if err != nil {
			return nil, wrapSendError(err)
		}
		return []int{msg.MessageID}, nil

	default:
		group := make([]telego.InputMedia, 0, len(out.Media))
		for i, m := range out.Media {
			caption := ""
			var entities []telego.MessageEntity
			if i == 0 {
				caption = out.Text
				entities = toEntities(out.Text, out.Spans)
			}
			group = append(group, inputMedia(m, caption, entities))
		}
		params := &telego.SendMediaGroupParams{
			ChatID:          chat,
			Media:           group,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		msgs, err := b.bot.SendMediaGroup(ctx, params)
		if err != nil {
			return nil, wrapSendError(err)
		}
		ids := make([]int, len(msgs))
		for i, m := range msgs {
			ids[i] = m.MessageID
		}
		return ids, nil
	}
}

func (b *Bot) sendSingleMedia(ctx context.Context, chat telego.ChatID, threadID int, replyParams *telego.ReplyParameters, out relay.Outgoing) (*telego.Message, error) {
	file := inputFile(out.Media[0])
	caption := out.Text
	entities := toEntities(out.Text, out.Spans)

	switch out.Media[0].Kind {
	case "video":
		params := &telego.SendVideoParams{
			ChatID: chat, Video: file,
			Caption: caption, CaptionEntities: entities,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		return b.bot.SendVideo(ctx, params)
	case "document":
		params := &telego.SendDocumentParams{
			ChatID: chat, Document: file,
			Caption: caption, CaptionEntities: entities,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		return b.bot.SendDocument(ctx, params)
	case "animation":
		params := &telego.SendAnimationParams{
			ChatID: chat, Animation: file,
			Caption: caption, CaptionEntities: entities,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		return b.bot.SendAnimation(ctx, params)
	case "audio":
		params := &telego.SendAudioParams{
			ChatID: chat, Audio: file,
			Caption: caption, CaptionEntities: entities,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		return b.bot.SendAudio(ctx, params)
	default: // "photo"
		params := &telego.SendPhotoParams{
			ChatID: chat, Photo: file,
			Caption: caption, CaptionEntities: entities,
			ReplyParameters: replyParams,
		}
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		return b.bot.SendPhoto(ctx, params)
	}
}

// EditText updates a previously sent message's text.
func (b *Bot) EditText(ctx context.Context, chatID int64, messageID int, text string, spans []relay.FormattingSpan) error {
	_, err := b.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      text,
		Entities:  toEntities(text, spans),
	})
	if err != nil {
		return wrapSendError(err)
	}
	return nil
}

// DownloadFile fetches a file's bytes by file id.
func (b *Bot) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > downloadMaxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, downloadMaxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, downloadMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if int64(len(data)) > downloadMaxBytes {
		return nil, fmt.Errorf("file exceeds max size during download")
	}
	return data, nil
}

func inputFile(m relay.OutMedia) telego.InputFile {
	if len(m.Data) > 0 {
		name := m.Name
		if name == "" {
			name = "file.bin"
		}
		return tu.File(tu.NameReader(bytes.NewReader(m.Data), name))
	}
	return tu.FileFromID(m.FileID)
}

func inputMedia(m relay.OutMedia, caption string, entities []telego.MessageEntity) telego.InputMedia {
	file := inputFile(m)
	switch m.Kind {
	case "video":
		media := tu.MediaVideo(file)
		media.Caption = caption
		media.CaptionEntities = entities
		return media
	case "document":
		media := tu.MediaDocument(file)
		media.Caption = caption
		media.CaptionEntities = entities
		return media
	case "audio":
		media := tu.MediaAudio(file)
		media.Caption = caption
		media.CaptionEntities = entities
		return media
	default: // "photo" and anything album-compatible
		media := tu.MediaPhoto(file)
		media.Caption = caption
		media.CaptionEntities = entities
		return media
	}
}

// telegramGeneralTopicID is the fixed topic ID of the "General" topic in
// forum supergroups.
const telegramGeneralTopicID = 1

// resolveThreadIDForSend returns the thread ID for send/edit API calls.
// General topic (1) must be omitted — Telegram rejects it with "thread not
// found".
func resolveThreadIDForSend(threadID int) int {
	if threadID == telegramGeneralTopicID {
		return 0
	}
	return threadID
}
