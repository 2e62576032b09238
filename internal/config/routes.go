package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Route is one configured forwarding rule: source chat (optionally scoped to
// a forum topic) to target chat (optionally into a forum topic), with an
// optional case-insensitive keyword filter.
type Route struct {
	SourceChatID  int64
	SourceTopicID int // 0 = any topic
	TargetChatID  int64
	TargetTopicID int // 0 = plain chat, >0 = forum topic root message id
	SearchKeyword string
}

// Key returns the mapping key for this route's destination:
// "chatId" or "chatId:topicId".
func (r Route) Key() string {
	return TargetKey(r.TargetChatID, r.TargetTopicID)
}

// TargetKey builds the composite destination key used by the identity map
// and the webhook allow-set.
func TargetKey(chatID int64, topicID int) string {
	if topicID > 0 {
		return fmt.Sprintf("%d:%d", chatID, topicID)
	}
	return strconv.FormatInt(chatID, 10)
}

// RouteSet is the parsed routing table.
type RouteSet struct {
	Routes     []Route
	LegacyMode bool
}

// SourceChatIDs returns the unique source chat ids, in first-seen order.
// One inbound subscription is installed per unique source, not per route.
func (s RouteSet) SourceChatIDs() []int64 {
	seen := make(map[int64]bool, len(s.Routes))
	var ids []int64
	for _, r := range s.Routes {
		if !seen[r.SourceChatID] {
			seen[r.SourceChatID] = true
			ids = append(ids, r.SourceChatID)
		}
	}
	return ids
}

// Match returns the routes applying to a message in (sourceChat, topicID).
// Routes pinned to a source topic match only that topic; unpinned routes
// match any topic. Keyword filters are evaluated per message text later.
func (s RouteSet) Match(sourceChat int64, topicID int) []Route {
	var out []Route
	for _, r := range s.Routes {
		if r.SourceChatID != sourceChat {
			continue
		}
		if r.SourceTopicID != 0 && r.SourceTopicID != topicID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseRoutes turns the declarative route strings into a RouteSet.
//
// Modern mode combines two comma-separated lists:
//   - plain entries "sourceId[:sourceTopicId]:targetId[:targetTopicId]"
//     (2–4 fields; the 3-field form is source:sourceTopic:target; topic id 0
//     means unset),
//   - keyword entries "s-<keyword>:sourceId:sourceTopicId:targetId".
//
// Malformed entries are skipped with a warning. If modern input is non-empty
// yet yields zero valid routes, parsing fails — a misconfigured relay must
// not start as a silent no-op. When both modern lists are empty, the legacy
// source/target pair is used instead.
func (c *Config) ParseRoutes() (RouteSet, error) {
	return parseRoutes(c.Relay.Routes, c.Relay.SearchRoutes, c.Relay.SourceChannel, c.Relay.TargetChannel)
}

func parseRoutes(routesCSV, searchCSV, legacySource, legacyTarget string) (RouteSet, error) {
	modern := strings.TrimSpace(routesCSV) != "" || strings.TrimSpace(searchCSV) != ""

	var set RouteSet
	for _, entry := range splitEntries(searchCSV) {
		r, err := parseSearchEntry(entry)
		if err != nil {
			slog.Warn("skipping malformed search route", "entry", entry, "error", err)
			continue
		}
		set.Routes = append(set.Routes, r)
	}
	for _, entry := range splitEntries(routesCSV) {
		r, err := parseRouteEntry(entry)
		if err != nil {
			slog.Warn("skipping malformed route", "entry", entry, "error", err)
			continue
		}
		set.Routes = append(set.Routes, r)
	}

	if modern {
		if len(set.Routes) == 0 {
			return RouteSet{}, fmt.Errorf("route configuration is non-empty but produced no valid routes")
		}
		return set, nil
	}

	if legacySource == "" || legacyTarget == "" {
		return RouteSet{}, fmt.Errorf("no routes configured")
	}
	src, err := strconv.ParseInt(strings.TrimSpace(legacySource), 10, 64)
	if err != nil {
		return RouteSet{}, fmt.Errorf("legacy source channel %q: %w", legacySource, err)
	}
	tgt, err := strconv.ParseInt(strings.TrimSpace(legacyTarget), 10, 64)
	if err != nil {
		return RouteSet{}, fmt.Errorf("legacy target channel %q: %w", legacyTarget, err)
	}
	set.Routes = append(set.Routes, Route{SourceChatID: src, TargetChatID: tgt})
	set.LegacyMode = true
	return set, nil
}

func splitEntries(csv string) []string {
	var out []string
	for _, e := range strings.Split(csv, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// parseRouteEntry parses "sourceId[:sourceTopicId]:targetId[:targetTopicId]".
func parseRouteEntry(entry string) (Route, error) {
	fields := strings.Split(entry, ":")
	if len(fields) < 2 || len(fields) > 4 {
		return Route{}, fmt.Errorf("expected 2-4 colon-separated fields, got %d", len(fields))
	}

	nums := make([]int64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return Route{}, fmt.Errorf("field %d %q is not an integer", i+1, f)
		}
		nums[i] = n
	}

	var r Route
	switch len(nums) {
	case 2: // source:target
		r = Route{SourceChatID: nums[0], TargetChatID: nums[1]}
	case 3: // source:sourceTopic:target
		r = Route{SourceChatID: nums[0], SourceTopicID: int(nums[1]), TargetChatID: nums[2]}
	case 4: // source:sourceTopic:target:targetTopic
		r = Route{
			SourceChatID:  nums[0],
			SourceTopicID: int(nums[1]),
			TargetChatID:  nums[2],
			TargetTopicID: int(nums[3]),
		}
	}
	if r.SourceChatID == 0 || r.TargetChatID == 0 {
		return Route{}, fmt.Errorf("source and target chat ids must be non-zero")
	}
	return r, nil
}

// parseSearchEntry parses "s-<keyword>:sourceId:sourceTopicId:targetId".
func parseSearchEntry(entry string) (Route, error) {
	if !strings.HasPrefix(entry, "s-") {
		return Route{}, fmt.Errorf("missing s- prefix")
	}
	fields := strings.Split(entry[2:], ":")
	if len(fields) != 4 {
		return Route{}, fmt.Errorf("expected keyword plus 3 ids, got %d fields", len(fields))
	}
	keyword := strings.TrimSpace(fields[0])
	if keyword == "" {
		return Route{}, fmt.Errorf("empty keyword")
	}

	src, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Route{}, fmt.Errorf("source id %q is not an integer", fields[1])
	}
	topic, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return Route{}, fmt.Errorf("source topic id %q is not an integer", fields[2])
	}
	tgt, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return Route{}, fmt.Errorf("target id %q is not an integer", fields[3])
	}
	if src == 0 || tgt == 0 {
		return Route{}, fmt.Errorf("source and target chat ids must be non-zero")
	}

	return Route{
		SourceChatID:  src,
		SourceTopicID: topic,
		TargetChatID:  tgt,
		SearchKeyword: keyword,
	}, nil
}
