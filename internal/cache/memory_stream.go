package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

var (
	ErrNoSuchKey  = errors.New("ERR no such key")
	ErrBusyGroup  = errors.New("BUSYGROUP Consumer Group name already exists")
	ErrIDTooSmall = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	ErrIDZero     = errors.New("ERR The ID specified in XADD must be greater than 0-0")

	ErrGroupNeedsKey = errors.New("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
)

func noGroupError(key, group, command string) error {
	return fmt.Errorf("NOGROUP No such key '%s' or consumer group '%s' in %s command", key, group, command)
}

// stream returns the stream stored at key, or nil. Callers hold c.mu.
func (c *MemoryCache) stream(key string) (*models.Stream, error) {
	if err := c.checkType(key, typeStream); err != nil {
		return nil, err
	}
	return c.streams[key], nil
}

func (c *MemoryCache) group(key, group, command string) (*models.Stream, *models.StreamConsumerGroup, error) {
	stream, err := c.stream(key)
	if err != nil {
		return nil, nil, err
	}
	if stream == nil {
		return nil, nil, noGroupError(key, group, command)
	}
	g, ok := stream.Groups[group]
	if !ok {
		return nil, nil, noGroupError(key, group, command)
	}
	return stream, g, nil
}

func (c *MemoryCache) nextID(stream *models.Stream, id string) (models.StreamID, error) {
	now := uint64(c.clock.Now().UnixMilli())
	last := stream.LastID

	if id == "*" {
		if now > last.Ms {
			return models.StreamID{Ms: now}, nil
		}
		next, ok := last.Next()
		if !ok {
			return models.StreamID{}, ErrIDTooSmall
		}
		return next, nil
	}

	if msPart, ok := strings.CutSuffix(id, "-*"); ok {
		ms, err := models.ParseStreamID(msPart, 0)
		if err != nil {
			return models.StreamID{}, err
		}
		switch {
		case ms.Ms > last.Ms:
			if ms.Ms == 0 {
				return models.StreamID{Seq: 1}, nil
			}
			return models.StreamID{Ms: ms.Ms}, nil
		case ms.Ms == last.Ms:
			next, ok := last.Next()
			if !ok || next.Ms != last.Ms {
				return models.StreamID{}, ErrIDTooSmall
			}
			return next, nil
		default:
			return models.StreamID{}, ErrIDTooSmall
		}
	}

	parsed, err := models.ParseStreamID(id, 0)
	if err != nil {
		return models.StreamID{}, err
	}
	if parsed.IsZero() {
		return models.StreamID{}, ErrIDZero
	}
	if !last.Less(parsed) {
		return models.StreamID{}, ErrIDTooSmall
	}
	return parsed, nil
}

// XAdd appends an entry and returns its ID. With noMkStream set and no
// stream at key it returns an empty ID. maxLen < 0 disables trimming.
func (c *MemoryCache) XAdd(key string, id string, fields []string, maxLen int, noMkStream bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil {
		return "", err
	}
	if stream == nil {
		if noMkStream {
			return "", nil
		}
		stream = models.NewStream()
	}

	entryID, err := c.nextID(stream, id)
	if err != nil {
		return "", err
	}

	stored := make([]string, len(fields))
	copy(stored, fields)
	stream.Entries = append(stream.Entries, models.StreamEntry{ID: entryID, Fields: stored})
	stream.LastID = entryID
	stream.EntriesAdded++
	if maxLen >= 0 {
		trimStream(stream, maxLen)
	}

	c.streams[key] = stream
	c.touch(key)
	return entryID.String(), nil
}

func trimStream(stream *models.Stream, maxLen int) int {
	excess := len(stream.Entries) - maxLen
	if excess <= 0 {
		return 0
	}
	stream.Entries = append([]models.StreamEntry(nil), stream.Entries[excess:]...)
	return excess
}

func (c *MemoryCache) XLen(key string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return 0, err
	}
	return len(stream.Entries), nil
}

// XRange returns entries with start <= ID <= end. count <= 0 means no limit.
func (c *MemoryCache) XRange(key string, start, end models.StreamID, count int) ([]models.StreamEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return nil, err
	}

	var out []models.StreamEntry
	for i := stream.Search(start); i < len(stream.Entries); i++ {
		entry := stream.Entries[i]
		if end.Less(entry.ID) {
			break
		}
		if count > 0 && len(out) >= count {
			break
		}
		out = append(out, entry)
	}
	return out, nil
}

// XLastID returns the last generated ID, zero for a missing stream.
func (c *MemoryCache) XLastID(key string) (models.StreamID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return models.MinStreamID, err
	}
	return stream.LastID, nil
}

// XRead returns entries with ID strictly greater than after.
func (c *MemoryCache) XRead(key string, after models.StreamID, count int) ([]models.StreamEntry, error) {
	start, ok := after.Next()
	if !ok {
		return nil, nil
	}
	return c.XRange(key, start, models.MaxStreamID, count)
}

// seen registers consumer in g on first use and refreshes its seen time.
func seen(g *models.StreamConsumerGroup, consumer string, now time.Time) {
	cons, ok := g.Consumers[consumer]
	if !ok {
		cons = &models.StreamConsumer{Name: consumer}
		g.Consumers[consumer] = cons
	}
	cons.SeenTime = now
}

// XReadGroup delivers entries to consumer. id ">" delivers entries never
// delivered to the group and adds them to the pending list unless noAck
// is set. Any other id replays the consumer's own pending entries with a
// greater ID.
func (c *MemoryCache) XReadGroup(key, group, consumer, id string, count int, noAck bool) ([]models.StreamEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, g, err := c.group(key, group, "XREADGROUP")
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	seen(g, consumer, now)

	if id == ">" {
		start, ok := g.LastDeliveredID.Next()
		if !ok {
			return nil, nil
		}
		var out []models.StreamEntry
		for i := stream.Search(start); i < len(stream.Entries); i++ {
			if count > 0 && len(out) >= count {
				break
			}
			entry := stream.Entries[i]
			out = append(out, entry)
			g.LastDeliveredID = entry.ID
			if !noAck {
				g.Pending[entry.ID] = &models.PendingMessage{
					ID:           entry.ID,
					Consumer:     consumer,
					DeliveryTime: now,
					Deliveries:   1,
				}
			}
		}
		if len(out) > 0 {
			c.touch(key)
		}
		return out, nil
	}

	after, err := models.ParseStreamID(id, 0)
	if err != nil {
		return nil, err
	}

	out := []models.StreamEntry{}
	for _, p := range g.SortedPending() {
		if p.Consumer != consumer || !after.Less(p.ID) {
			continue
		}
		if count > 0 && len(out) >= count {
			break
		}
		entry, ok := stream.Find(p.ID)
		if !ok {
			continue
		}
		p.DeliveryTime = now
		p.Deliveries++
		out = append(out, entry)
	}
	if len(out) > 0 {
		c.touch(key)
	}
	return out, nil
}

// XAck removes ids from the group's pending list and returns how many
// were pending. A missing stream or group acknowledges nothing.
func (c *MemoryCache) XAck(key, group string, ids ...models.StreamID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return 0, err
	}
	g, ok := stream.Groups[group]
	if !ok {
		return 0, nil
	}

	acked := 0
	for _, id := range ids {
		if _, ok := g.Pending[id]; ok {
			delete(g.Pending, id)
			acked++
		}
	}
	if acked > 0 {
		c.touch(key)
	}
	return acked, nil
}

// XClaim transfers ownership of pending ids idle for at least minIdle.
// Pending ids whose entry was deleted are dropped from the pending list.
func (c *MemoryCache) XClaim(key, group, consumer string, minIdle time.Duration, ids []models.StreamID) ([]models.StreamEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, g, err := c.group(key, group, "XCLAIM")
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	seen(g, consumer, now)

	out := []models.StreamEntry{}
	dropped := 0
	for _, id := range ids {
		p, ok := g.Pending[id]
		if !ok {
			continue
		}
		if now.Sub(p.DeliveryTime) < minIdle {
			continue
		}
		entry, ok := stream.Find(id)
		if !ok {
			delete(g.Pending, id)
			dropped++
			continue
		}
		p.Consumer = consumer
		p.DeliveryTime = now
		p.Deliveries++
		out = append(out, entry)
	}
	if len(out) > 0 || dropped > 0 {
		c.touch(key)
	}
	return out, nil
}

func (c *MemoryCache) XPendingSummary(key, group string) (models.PendingSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, g, err := c.group(key, group, "XPENDING")
	if err != nil {
		return models.PendingSummary{}, err
	}

	summary := models.PendingSummary{Consumers: make(map[string]int64)}
	pending := g.SortedPending()
	if len(pending) == 0 {
		return summary, nil
	}
	summary.Count = int64(len(pending))
	summary.Lowest = pending[0].ID.String()
	summary.Highest = pending[len(pending)-1].ID.String()
	for _, p := range pending {
		summary.Consumers[p.Consumer]++
	}
	return summary, nil
}

// XPending lists up to count pending entries within [start, end], idle
// for at least minIdle and, when consumer is set, owned by consumer.
func (c *MemoryCache) XPending(key, group string, start, end models.StreamID, count int, minIdle time.Duration, consumer string) ([]models.PendingDetail, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, g, err := c.group(key, group, "XPENDING")
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	out := []models.PendingDetail{}
	for _, p := range g.SortedPending() {
		if len(out) >= count {
			break
		}
		if p.ID.Less(start) || end.Less(p.ID) {
			continue
		}
		if consumer != "" && p.Consumer != consumer {
			continue
		}
		idle := now.Sub(p.DeliveryTime)
		if idle < minIdle {
			continue
		}
		out = append(out, models.PendingDetail{
			ID:         p.ID.String(),
			Consumer:   p.Consumer,
			Idle:       idle,
			Deliveries: p.Deliveries,
		})
	}
	return out, nil
}

// XDel removes entries by ID. Pending lists are left untouched.
func (c *MemoryCache) XDel(key string, ids ...models.StreamID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return 0, err
	}

	remove := make(map[models.StreamID]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	kept := stream.Entries[:0]
	deleted := 0
	for _, entry := range stream.Entries {
		if _, ok := remove[entry.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, entry)
	}
	stream.Entries = kept
	if deleted > 0 {
		c.touch(key)
	}
	return deleted, nil
}

func (c *MemoryCache) XTrim(key string, maxLen int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil || stream == nil {
		return 0, err
	}
	trimmed := trimStream(stream, maxLen)
	if trimmed > 0 {
		c.touch(key)
	}
	return trimmed, nil
}

// XGroupCreate creates group starting after id ("$" for the last entry).
func (c *MemoryCache) XGroupCreate(key, group, id string, mkStream bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil {
		return err
	}
	if stream == nil {
		if !mkStream {
			return ErrGroupNeedsKey
		}
		stream = models.NewStream()
		c.streams[key] = stream
	}
	if _, exists := stream.Groups[group]; exists {
		return ErrBusyGroup
	}

	var start models.StreamID
	if id == "$" {
		start = stream.LastID
	} else if start, err = models.ParseStreamID(id, 0); err != nil {
		return err
	}

	stream.Groups[group] = models.NewStreamConsumerGroup(group, start)
	c.touch(key)
	return nil
}

func (c *MemoryCache) XGroupDestroy(key, group string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.stream(key)
	if err != nil {
		return false, err
	}
	if stream == nil {
		return false, ErrNoSuchKey
	}
	if _, ok := stream.Groups[group]; !ok {
		return false, nil
	}
	delete(stream.Groups, group)
	c.touch(key)
	return true, nil
}

func (c *MemoryCache) XGroupCreateConsumer(key, group, consumer string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, g, err := c.group(key, group, "XGROUP")
	if err != nil {
		return false, err
	}
	if _, ok := g.Consumers[consumer]; ok {
		return false, nil
	}
	g.Consumers[consumer] = &models.StreamConsumer{Name: consumer, SeenTime: c.clock.Now()}
	c.touch(key)
	return true, nil
}

// XGroupDelConsumer removes consumer and returns how many pending entries
// it owned.
func (c *MemoryCache) XGroupDelConsumer(key, group, consumer string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, g, err := c.group(key, group, "XGROUP")
	if err != nil {
		return 0, err
	}
	if _, ok := g.Consumers[consumer]; !ok {
		return 0, nil
	}

	owned := 0
	for id, p := range g.Pending {
		if p.Consumer == consumer {
			delete(g.Pending, id)
			owned++
		}
	}
	delete(g.Consumers, consumer)
	c.touch(key)
	return owned, nil
}

func (c *MemoryCache) XInfoStream(key string) (models.StreamInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stream, err := c.stream(key)
	if err != nil {
		return models.StreamInfo{}, err
	}
	if stream == nil {
		return models.StreamInfo{}, ErrNoSuchKey
	}

	info := models.StreamInfo{
		Length:          int64(len(stream.Entries)),
		RadixTreeNodes:  1,
		Groups:          int64(len(stream.Groups)),
		LastGeneratedID: stream.LastID.String(),
	}
	if n := len(stream.Entries); n > 0 {
		info.RadixTreeKeys = 1
		first := stream.Entries[0]
		last := stream.Entries[n-1]
		info.FirstEntry = &first
		info.LastEntry = &last
	}
	return info, nil
}

func (c *MemoryCache) XInfoGroups(key string) ([]models.StreamGroup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stream, err := c.stream(key)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, ErrNoSuchKey
	}

	groups := make([]models.StreamGroup, 0, len(stream.Groups))
	for _, g := range stream.Groups {
		groups = append(groups, models.StreamGroup{
			Name:            g.Name,
			Consumers:       int64(len(g.Consumers)),
			Pending:         int64(len(g.Pending)),
			LastDeliveredID: g.LastDeliveredID.String(),
		})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (c *MemoryCache) XInfoConsumers(key, group string) ([]models.StreamConsumerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, g, err := c.group(key, group, "XINFO")
	if err != nil {
		return nil, err
	}

	owned := make(map[string]int64, len(g.Consumers))
	for _, p := range g.Pending {
		owned[p.Consumer]++
	}

	now := c.clock.Now()
	consumers := make([]models.StreamConsumerInfo, 0, len(g.Consumers))
	for _, cons := range g.Consumers {
		consumers = append(consumers, models.StreamConsumerInfo{
			Name:    cons.Name,
			Pending: owned[cons.Name],
			Idle:    now.Sub(cons.SeenTime),
		})
	}
	sort.Slice(consumers, func(i, j int) bool { return consumers[i].Name < consumers[j].Name })
	return consumers, nil
}
