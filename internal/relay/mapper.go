package relay

import (
	"sync"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// MessageMapper records which target message each forwarded source message
// became, per destination. It resolves reply chains and edit propagation.
// Entries live for the process lifetime; absence is the normal "never
// forwarded" case, not an error. Safe for concurrent use.
type MessageMapper struct {
	mu sync.RWMutex
	// sourceID → destination key ("chat" or "chat:topic") → target message id
	entries map[int]map[string]int
}

// NewMessageMapper creates an empty mapper.
func NewMessageMapper() *MessageMapper {
	return &MessageMapper{entries: make(map[int]map[string]int)}
}

// Set records that sourceID was delivered to (targetChat, targetTopic) as
// targetMsgID. The key includes the topic, so the same target chat at two
// topics never clobbers one another.
func (m *MessageMapper) Set(sourceID int, targetChat int64, targetMsgID, targetTopic int) {
	key := config.TargetKey(targetChat, targetTopic)

	m.mu.Lock()
	defer m.mu.Unlock()
	dests, ok := m.entries[sourceID]
	if !ok {
		dests = make(map[string]int, 1)
		m.entries[sourceID] = dests
	}
	dests[key] = targetMsgID
}

// Get returns the target message id sourceID became at (targetChat,
// targetTopic), if any.
func (m *MessageMapper) Get(sourceID int, targetChat int64, targetTopic int) (int, bool) {
	key := config.TargetKey(targetChat, targetTopic)

	m.mu.RLock()
	defer m.mu.RUnlock()
	dests, ok := m.entries[sourceID]
	if !ok {
		return 0, false
	}
	id, ok := dests[key]
	return id, ok
}

// Len returns the number of mapped source messages.
func (m *MessageMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
