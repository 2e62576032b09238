package telegram

import (
	"reflect"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/tgmirror/internal/relay"
)

func TestFromTelegoBasics(t *testing.T) {
	msg := &telego.Message{
		MessageID: 42,
		Chat:      telego.Chat{ID: -100111},
		Text:      "hello",
		ReplyToMessage: &telego.Message{
			MessageID: 7,
		},
	}

	got := fromTelego(msg)
	if got.ID != 42 || got.ChatID != -100111 || got.Text != "hello" {
		t.Errorf("got %+v", got)
	}
	if got.ReplyToID != 7 {
		t.Errorf("ReplyToID = %d, want 7", got.ReplyToID)
	}
	if got.TopicID != 0 {
		t.Errorf("TopicID = %d for non-forum chat, want 0", got.TopicID)
	}
}

func TestFromTelegoForumTopics(t *testing.T) {
	msg := &telego.Message{
		MessageID:       1,
		Chat:            telego.Chat{ID: -100111, IsForum: true},
		MessageThreadID: 42,
		Text:            "x",
	}
	if got := fromTelego(msg); got.TopicID != 42 {
		t.Errorf("TopicID = %d, want 42", got.TopicID)
	}

	// Forum message without a thread id lives in the General topic.
	msg.MessageThreadID = 0
	if got := fromTelego(msg); got.TopicID != telegramGeneralTopicID {
		t.Errorf("TopicID = %d, want General (%d)", got.TopicID, telegramGeneralTopicID)
	}
}

func TestFromTelegoCaptionCollapse(t *testing.T) {
	msg := &telego.Message{
		MessageID: 1,
		Chat:      telego.Chat{ID: -100111},
		Caption:   "caption text",
		CaptionEntities: []telego.MessageEntity{
			{Type: "bold", Offset: 0, Length: 7},
		},
		Photo: []telego.PhotoSize{
			{FileID: "small"},
			{FileID: "large"},
		},
		MediaGroupID: "alb1",
	}

	got := fromTelego(msg)
	if got.Text != "caption text" {
		t.Errorf("Text = %q, want the caption", got.Text)
	}
	if len(got.Spans) != 1 || got.Spans[0].Kind != "bold" {
		t.Errorf("Spans = %+v", got.Spans)
	}
	if got.GroupID != "alb1" {
		t.Errorf("GroupID = %q", got.GroupID)
	}
	// Highest-resolution photo size wins.
	want := []relay.Media{{Kind: "photo", FileID: "large"}}
	if !reflect.DeepEqual(got.Media, want) {
		t.Errorf("Media = %+v, want %+v", got.Media, want)
	}
}

func TestExtractMediaAnimationDedupe(t *testing.T) {
	msg := &telego.Message{
		Chat:      telego.Chat{ID: -1},
		Animation: &telego.Animation{FileID: "anim"},
		Document:  &telego.Document{FileID: "doc"},
	}
	got := extractMedia(msg)
	if len(got) != 1 || got[0].Kind != "animation" {
		t.Errorf("Media = %+v, want only the animation", got)
	}
}

func TestExtractButtons(t *testing.T) {
	msg := &telego.Message{
		Chat: telego.Chat{ID: -1},
		ReplyMarkup: &telego.InlineKeyboardMarkup{
			InlineKeyboard: [][]telego.InlineKeyboardButton{
				{{Text: "Open", URL: "https://x.example"}, {Text: "Vote", CallbackData: "v"}},
			},
		},
	}
	got := extractButtons(msg)
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("Buttons = %+v", got)
	}
	if got[0][0].URL != "https://x.example" || got[0][1].URL != "" {
		t.Errorf("Buttons = %+v", got)
	}
}

func TestSpansUTF16Conversion(t *testing.T) {
	// The fire emoji occupies two UTF-16 units but four bytes, so a "sale"
	// entity at UTF-16 offset 3 starts at byte 5.
	text := "🔥 sale"
	entities := []telego.MessageEntity{{Type: "bold", Offset: 3, Length: 4}}

	spans := toSpans(text, entities)
	want := []relay.FormattingSpan{{Offset: 5, Length: 4, Kind: "bold"}}
	if !reflect.DeepEqual(spans, want) {
		t.Fatalf("toSpans = %+v, want %+v", spans, want)
	}
	if text[spans[0].Offset:spans[0].Offset+spans[0].Length] != "sale" {
		t.Errorf("span does not cover %q", "sale")
	}

	back := toEntities(text, spans)
	if !reflect.DeepEqual(back, entities) {
		t.Errorf("toEntities = %+v, want %+v", back, entities)
	}
}

func TestToSpansDropsOutOfRange(t *testing.T) {
	spans := toSpans("ab", []telego.MessageEntity{
		{Type: "bold", Offset: 1, Length: 5},
		{Type: "bold", Offset: 0, Length: 1},
	})
	if len(spans) != 1 || spans[0].Offset != 0 {
		t.Errorf("toSpans = %+v, want only the in-range entity", spans)
	}
}

func TestToEntitiesURLPreserved(t *testing.T) {
	text := "click here"
	spans := []relay.FormattingSpan{{Offset: 6, Length: 4, Kind: "text_link", URL: "https://x.example"}}
	got := toEntities(text, spans)
	if len(got) != 1 || got[0].URL != "https://x.example" || got[0].Type != "text_link" {
		t.Errorf("toEntities = %+v", got)
	}
}
