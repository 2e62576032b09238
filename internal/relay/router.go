package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// Client is the chat-client contract the router drives. The telegram
// package provides the production implementation; tests use fakes.
type Client interface {
	SubscribeNewMessage(chatID int64, handler func(Message))
	SubscribeEditedMessage(chatID int64, handler func(Message))
	// Send delivers text and/or media to a chat and returns the resulting
	// message ids, one per sent message (albums yield several).
	Send(ctx context.Context, chatID int64, out Outgoing) ([]int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, spans []FormattingSpan) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Outgoing is one outbound delivery request handed to the client.
type Outgoing struct {
	Text      string
	Spans     []FormattingSpan
	ReplyToID int        // 0 = plain send
	TopicID   int        // forum topic root id for thread addressing, 0 = none
	Media     []OutMedia // empty = text message, >1 = album
}

// OutMedia is one outbound media item. Data, when set, is uploaded instead
// of resending by FileID (watermark-stripped photos).
type OutMedia struct {
	Kind    string
	FileID  string
	Data    []byte
	Name    string
	Caption string // only meaningful on the first album item
}

// DeliveryNotifier is told about successful deliveries; implementations
// must never block the send pipeline.
type DeliveryNotifier interface {
	Delivered(ctx context.Context, targetChat int64, topicID, messageID int, text string)
}

// WatermarkCleaner post-processes photo bytes before re-upload.
type WatermarkCleaner interface {
	Strip(data []byte) ([]byte, error)
}

// Router subscribes to inbound events per source chat, filters against the
// route table, funnels albums through the aggregator, and dispatches units
// popped by the send queue. It owns all relay state; construct one per
// process (or per test).
type Router struct {
	ctx      context.Context
	client   Client
	mapper   *MessageMapper
	queue    *SendQueue
	agg      *Aggregator
	tracer   trace.Tracer
	notifier DeliveryNotifier
	cleaner  WatermarkCleaner

	mu         sync.RWMutex
	routes     config.RouteSet
	rewriter   *Rewriter
	footers    map[string][]string
	noButtons  bool
	subscribed map[int64]bool
}

// RouterOptions carries the tunables and optional collaborators.
type RouterOptions struct {
	MessageDelay  int // ms, 0 = default
	MaxRetries    int
	AlbumDebounce int // ms, 0 = default
	Notifier      DeliveryNotifier
	Cleaner       WatermarkCleaner
}

// NewRouter wires the pipeline: aggregator flushes feed the queue, the
// queue dispatches through the router back into the client.
func NewRouter(ctx context.Context, client Client, cfg *config.Config, routes config.RouteSet, opts RouterOptions) *Router {
	r := &Router{
		ctx:        ctx,
		client:     client,
		mapper:     NewMessageMapper(),
		tracer:     otel.Tracer("tgmirror/relay"),
		notifier:   opts.Notifier,
		cleaner:    opts.Cleaner,
		routes:     routes,
		rewriter:   NewRewriter(cfg.Rewrite.Rules),
		footers:    cfg.Relay.FooterOverrides,
		noButtons:  cfg.Relay.DisableButtons,
		subscribed: make(map[int64]bool),
	}
	r.queue = NewSendQueue(ctx, cfg.MessageDelay(), cfg.Relay.MaxRetries, r.dispatch)
	r.agg = NewAggregator(cfg.AlbumDebounce(), r.queue.Enqueue)
	return r
}

// Start installs one new-message and one edited-message subscription per
// unique source chat id. Fan-out to multiple routes sharing a source
// happens internally, so the same underlying event is never delivered
// twice.
func (r *Router) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeLocked()
}

func (r *Router) subscribeLocked() {
	for _, id := range r.routes.SourceChatIDs() {
		if r.subscribed[id] {
			continue
		}
		r.subscribed[id] = true
		r.client.SubscribeNewMessage(id, r.HandleNewMessage)
		r.client.SubscribeEditedMessage(id, r.HandleEdit)
		slog.Info("subscribed to source channel", "chat_id", id)
	}
}

// Drain waits for the send queue consumer to go idle.
func (r *Router) Drain() { r.queue.Drain() }

// Mapper exposes the identity map (doctor command, tests).
func (r *Router) Mapper() *MessageMapper { return r.mapper }

// UpdateConfig swaps the route table, rewrite rules and footer overrides,
// subscribing to any newly referenced source chats. Existing subscriptions
// for removed sources stay installed but stop matching routes.
func (r *Router) UpdateConfig(cfg *config.Config, routes config.RouteSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = routes
	r.rewriter = NewRewriter(cfg.Rewrite.Rules)
	r.footers = cfg.Relay.FooterOverrides
	r.noButtons = cfg.Relay.DisableButtons
	r.subscribeLocked()
	slog.Info("route table updated", "routes", len(routes.Routes))
}

// HandleNewMessage reacts to one inbound message event. A panic in the
// handling of one message must never take down the subscription, so the
// boundary recovers and logs.
func (r *Router) HandleNewMessage(msg Message) {
	defer r.recoverHandler("new_message", msg)

	routes := r.matchRoutes(msg.ChatID, msg.TopicID)
	if len(routes) == 0 {
		slog.Debug("no route for message", "chat_id", msg.ChatID, "topic_id", msg.TopicID, "message_id", msg.ID)
		return
	}
	if !msg.HasContent() {
		slog.Debug("empty message dropped", "chat_id", msg.ChatID, "message_id", msg.ID)
		return
	}

	for _, route := range routes {
		if !keywordMatch(route.SearchKeyword, msg.Text) {
			slog.Debug("keyword filter miss",
				"keyword", route.SearchKeyword, "chat_id", msg.ChatID, "message_id", msg.ID,
			)
			continue
		}
		if msg.GroupID != "" {
			r.agg.Add(msg, route)
			continue
		}
		r.queue.Enqueue(NewSingleUnit(msg, route))
	}
}

// HandleEdit propagates an edit to every previously forwarded copy,
// issuing exactly one edit per distinct (target chat, target message id)
// even when several routes map to the same sent message.
func (r *Router) HandleEdit(msg Message) {
	defer r.recoverHandler("edited_message", msg)

	routes := r.matchRoutes(msg.ChatID, msg.TopicID)
	if len(routes) == 0 {
		return
	}

	rewriter := r.currentRewriter()
	seen := make(map[string]bool, len(routes))
	for _, route := range routes {
		targetID, ok := r.mapper.Get(msg.ID, route.TargetChatID, route.TargetTopicID)
		if !ok {
			slog.Warn("edit skipped: message was never forwarded",
				"source_message_id", msg.ID, "target", route.Key(),
			)
			continue
		}
		dedupeKey := strconv.FormatInt(route.TargetChatID, 10) + ":" + strconv.Itoa(targetID)
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		text, spans := rewriter.RewriteSpans(msg.Text, msg.Spans)
		if err := r.client.EditText(r.ctx, route.TargetChatID, targetID, text, spans); err != nil {
			slog.Error("edit failed",
				"target_chat", route.TargetChatID, "target_message_id", targetID, "error", err,
			)
		}
	}
}

// dispatch is the function the send queue invokes for each popped unit.
// Errors returned here are classified by the queue: RateLimitError is
// retried, anything else drops the unit.
func (r *Router) dispatch(ctx context.Context, unit *SendUnit) error {
	ctx, span := r.tracer.Start(ctx, "relay.dispatch",
		trace.WithAttributes(
			attribute.String("unit.id", unit.ID.String()),
			attribute.String("unit.kind", unit.Kind),
			attribute.Int64("target.chat_id", unit.Route.TargetChatID),
			attribute.Int("messages", len(unit.Messages)),
		))
	defer span.End()

	route := unit.Route
	lead := unit.First()

	out := Outgoing{
		TopicID:   route.TargetTopicID,
		ReplyToID: r.resolveReplyTo(lead, route),
	}

	// Albums carry their caption on whichever item has text.
	text, spans := albumText(unit.Messages)
	rewriter := r.currentRewriter()
	out.Text, out.Spans = rewriter.RewriteSpans(text, spans)

	// Buttons become literal link lines, unless this target carries a fixed
	// footer instead or conversion is disabled.
	if footer, ok := r.footerFor(route.TargetChatID); ok {
		out.Text = AppendLines(out.Text, footer)
	} else if !r.buttonsDisabled() {
		out.Text = AppendLines(out.Text, ButtonLinks(lead.Buttons))
	}

	out.Media = r.collectMedia(ctx, unit)

	sentIDs, err := r.client.Send(ctx, route.TargetChatID, out)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("send to %s: %w", route.Key(), err)
	}

	// Record identity pairs so later replies and edits resolve. Albums map
	// item-for-item in order.
	for i, msg := range unit.Messages {
		if i < len(sentIDs) {
			r.mapper.Set(msg.ID, route.TargetChatID, sentIDs[i], route.TargetTopicID)
		}
	}

	if r.notifier != nil && len(sentIDs) > 0 {
		r.notifier.Delivered(ctx, route.TargetChatID, route.TargetTopicID, sentIDs[0], out.Text)
	}

	slog.Info("unit delivered",
		"unit_id", unit.ID, "kind", unit.Kind,
		"target", route.Key(), "messages", len(sentIDs),
	)
	return nil
}

// resolveReplyTo maps the source reply reference into the target chat.
// A reply pointing at the topic root is topic anchoring, not a user reply;
// real replies resolve through the identity map, and when the replied-to
// message was never forwarded the send falls back to the topic anchor (or a
// plain send for non-forum targets).
func (r *Router) resolveReplyTo(lead Message, route config.Route) int {
	realReply := lead.ReplyToID != 0 &&
		lead.ReplyToID != route.SourceTopicID &&
		lead.ReplyToID != lead.TopicID

	if realReply {
		if targetID, ok := r.mapper.Get(lead.ReplyToID, route.TargetChatID, route.TargetTopicID); ok {
			return targetID
		}
		slog.Debug("reply target not mapped, falling back",
			"source_reply_id", lead.ReplyToID, "target", route.Key(),
		)
	}
	if route.TargetTopicID > 0 {
		// Forum targets anchor the post inside the topic by replying to the
		// topic root.
		return route.TargetTopicID
	}
	return 0
}

// collectMedia gathers the unit's media in arrival order, stripping
// watermarks from photos when a cleaner is configured. A failed strip falls
// back to resending the original by file id.
func (r *Router) collectMedia(ctx context.Context, unit *SendUnit) []OutMedia {
	var media []OutMedia
	for _, msg := range unit.Messages {
		for _, m := range msg.Media {
			om := OutMedia{Kind: m.Kind, FileID: m.FileID}
			if r.cleaner != nil && m.Kind == "photo" {
				if data, err := r.stripWatermark(ctx, m.FileID); err != nil {
					slog.Warn("watermark strip failed, resending original", "file_id", m.FileID, "error", err)
				} else {
					om.Data = data
					om.Name = "photo.jpg"
				}
			}
			media = append(media, om)
		}
	}
	return media
}

func (r *Router) stripWatermark(ctx context.Context, fileID string) ([]byte, error) {
	data, err := r.client.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	cleaned, err := r.cleaner.Strip(data)
	if err != nil {
		return nil, fmt.Errorf("strip: %w", err)
	}
	return cleaned, nil
}

func (r *Router) matchRoutes(chatID int64, topicID int) []config.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes.Match(chatID, topicID)
}

func (r *Router) currentRewriter() *Rewriter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rewriter
}

func (r *Router) buttonsDisabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.noButtons
}

func (r *Router) footerFor(targetChat int64) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	footer, ok := r.footers[strconv.FormatInt(targetChat, 10)]
	return footer, ok
}

func (r *Router) recoverHandler(event string, msg Message) {
	if rec := recover(); rec != nil {
		slog.Error("panic in event handler",
			"event", event, "chat_id", msg.ChatID, "message_id", msg.ID, "panic", rec,
		)
	}
}

// keywordMatch reports whether text passes the route's keyword filter.
// An empty keyword always matches; otherwise a case-insensitive substring
// check applies.
func keywordMatch(keyword, text string) bool {
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// albumText returns the text and spans of the first item carrying text.
func albumText(msgs []Message) (string, []FormattingSpan) {
	for _, m := range msgs {
		if m.Text != "" {
			return m.Text, m.Spans
		}
	}
	return "", nil
}
