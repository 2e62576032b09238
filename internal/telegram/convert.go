package telegram

import (
	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/tgmirror/internal/relay"
)

// fromTelego maps a wire message onto the relay's closed message value.
// Entity offsets arrive in UTF-16 code units and are converted to byte
// offsets; the reverse happens in toEntities on the way out. Text and
// caption collapse into one text field — a message carries one or the
// other, never both.
func fromTelego(msg *telego.Message) relay.Message {
	text := msg.Text
	entities := msg.Entities
	if text == "" && msg.Caption != "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}

	m := relay.Message{
		ID:      msg.MessageID,
		ChatID:  msg.Chat.ID,
		Text:    text,
		Spans:   toSpans(text, entities),
		GroupID: msg.MediaGroupID,
		Media:   extractMedia(msg),
		Buttons: extractButtons(msg),
	}

	if msg.ReplyToMessage != nil {
		m.ReplyToID = msg.ReplyToMessage.MessageID
	}

	// Forum detection: outside forums message_thread_id is reply context,
	// not a topic; inside forums a missing id means the General topic.
	if msg.Chat.IsForum {
		m.TopicID = msg.MessageThreadID
		if m.TopicID == 0 {
			m.TopicID = telegramGeneralTopicID
		}
	}

	return m
}

func extractMedia(msg *telego.Message) []relay.Media {
	var media []relay.Media
	// Photo: take highest resolution (last element).
	if len(msg.Photo) > 0 {
		media = append(media, relay.Media{Kind: "photo", FileID: msg.Photo[len(msg.Photo)-1].FileID})
	}
	if msg.Video != nil {
		media = append(media, relay.Media{Kind: "video", FileID: msg.Video.FileID})
	}
	if msg.Animation != nil {
		media = append(media, relay.Media{Kind: "animation", FileID: msg.Animation.FileID})
	}
	if msg.Audio != nil {
		media = append(media, relay.Media{Kind: "audio", FileID: msg.Audio.FileID})
	}
	if msg.Document != nil && msg.Animation == nil {
		// Animations are also reported as documents; keep one.
		media = append(media, relay.Media{Kind: "document", FileID: msg.Document.FileID})
	}
	return media
}

func extractButtons(msg *telego.Message) [][]relay.Button {
	if msg.ReplyMarkup == nil || len(msg.ReplyMarkup.InlineKeyboard) == 0 {
		return nil
	}
	rows := make([][]relay.Button, 0, len(msg.ReplyMarkup.InlineKeyboard))
	for _, row := range msg.ReplyMarkup.InlineKeyboard {
		out := make([]relay.Button, 0, len(row))
		for _, btn := range row {
			out = append(out, relay.Button{Label: btn.Text, URL: btn.URL})
		}
		rows = append(rows, out)
	}
	return rows
}

// toSpans converts wire entities (UTF-16 offsets) to byte-offset spans.
func toSpans(text string, entities []telego.MessageEntity) []relay.FormattingSpan {
	if len(entities) == 0 {
		return nil
	}
	table := utf16ToByteTable(text)
	spans := make([]relay.FormattingSpan, 0, len(entities))
	for _, e := range entities {
		start, okStart := tableAt(table, e.Offset)
		end, okEnd := tableAt(table, e.Offset+e.Length)
		if !okStart || !okEnd || end <= start {
			continue
		}
		spans = append(spans, relay.FormattingSpan{
			Offset: start,
			Length: end - start,
			Kind:   e.Type,
			URL:    e.URL,
		})
	}
	return spans
}

// toEntities converts byte-offset spans back to wire entities.
func toEntities(text string, spans []relay.FormattingSpan) []telego.MessageEntity {
	if len(spans) == 0 {
		return nil
	}
	entities := make([]telego.MessageEntity, 0, len(spans))
	for _, s := range spans {
		if s.Offset < 0 || s.Offset+s.Length > len(text) || s.Length <= 0 {
			continue
		}
		entities = append(entities, telego.MessageEntity{
			Type:   s.Kind,
			Offset: utf16Len(text[:s.Offset]),
			Length: utf16Len(text[s.Offset : s.Offset+s.Length]),
			URL:    s.URL,
		})
	}
	return entities
}

// utf16ToByteTable maps every UTF-16 code-unit index of s to its byte
// index; the final element is len(s) so end offsets resolve too.
func utf16ToByteTable(s string) []int {
	table := make([]int, 0, len(s)+1)
	for i, r := range s {
		units := 1
		if r > 0xFFFF {
			units = 2
		}
		for u := 0; u < units; u++ {
			table = append(table, i)
		}
	}
	table = append(table, len(s))
	return table
}

func tableAt(table []int, idx int) (int, bool) {
	if idx < 0 || idx >= len(table) {
		return 0, false
	}
	return table[idx], true
}

// utf16Len counts the UTF-16 code units of s.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r > 0xFFFF {
			n++
		}
	}
	return n
}
