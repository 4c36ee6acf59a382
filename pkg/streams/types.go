package streams

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry is a raw stream entry: its ID and the flat field/value pairs.
type Entry struct {
	ID     string
	Fields []string
}

// Message is a decoded entry handed to a Consumer.
type Message struct {
	ID     string
	Stream string
	Record Record
}

type StreamInfo struct {
	Length          int64
	RadixTreeKeys   int64
	RadixTreeNodes  int64
	LastGeneratedID string
	Groups          int64
	FirstEntry      *Entry
	LastEntry       *Entry
}

type GroupInfo struct {
	Name            string
	Consumers       int64
	Pending         int64
	LastDeliveredID string
}

type ConsumerInfo struct {
	Name    string
	Pending int64
	Idle    time.Duration
}

type PendingEntry struct {
	ID            string
	Consumer      string
	Idle          time.Duration
	DeliveryCount int64
}

// CompareIDs orders two entry IDs of the form <ms>-<seq>. IDs that do not
// parse are compared as strings.
func CompareIDs(a, b string) int {
	ams, aseq, aok := splitID(a)
	bms, bseq, bok := splitID(b)
	if !aok || !bok {
		return strings.Compare(a, b)
	}
	switch {
	case ams < bms:
		return -1
	case ams > bms:
		return 1
	case aseq < bseq:
		return -1
	case aseq > bseq:
		return 1
	}
	return 0
}

func splitID(id string) (ms, seq uint64, ok bool) {
	msPart, seqPart, found := strings.Cut(id, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if !found {
		return ms, 0, true
	}
	seq, err = strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ms, seq, true
}

// Replies arrive through Do as RESP2 trees of string, int64, nil and
// []interface{}. The helpers below turn them into the types above.

func unexpected(what string, v interface{}) error {
	return fmt.Errorf("streams: unexpected %s reply %T", what, v)
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	}
	return "", unexpected("string", v)
}

func toInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, unexpected("integer", v)
}

func toEntry(v interface{}) (*Entry, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, unexpected("entry", v)
	}
	id, err := toString(arr[0])
	if err != nil {
		return nil, err
	}

	raw, ok := arr[1].([]interface{})
	if !ok && arr[1] != nil {
		return nil, unexpected("entry fields", arr[1])
	}
	fields := make([]string, len(raw))
	for i, f := range raw {
		if fields[i], err = toString(f); err != nil {
			return nil, err
		}
	}
	return &Entry{ID: id, Fields: fields}, nil
}

func toEntries(v interface{}) ([]Entry, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("entries", v)
	}
	entries := make([]Entry, 0, len(arr))
	for _, item := range arr {
		// XCLAIM reports entries deleted since delivery as nil.
		if item == nil {
			continue
		}
		entry, err := toEntry(item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// toStreamEntries reads an XREAD/XREADGROUP reply for a single key.
func toStreamEntries(v interface{}) ([]Entry, error) {
	streams, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("read", v)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	stream, ok := streams[0].([]interface{})
	if !ok || len(stream) != 2 {
		return nil, unexpected("read stream", streams[0])
	}
	return toEntries(stream[1])
}

// toPairs reads a flat key/value array such as an XINFO reply.
func toPairs(v interface{}) (map[string]interface{}, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr)%2 != 0 {
		return nil, unexpected("key/value", v)
	}
	pairs := make(map[string]interface{}, len(arr)/2)
	for i := 0; i < len(arr); i += 2 {
		key, err := toString(arr[i])
		if err != nil {
			return nil, err
		}
		pairs[key] = arr[i+1]
	}
	return pairs, nil
}

func toStreamInfo(v interface{}) (*StreamInfo, error) {
	pairs, err := toPairs(v)
	if err != nil {
		return nil, err
	}

	info := &StreamInfo{}
	for key, value := range pairs {
		switch key {
		case "length":
			info.Length, err = toInt(value)
		case "radix-tree-keys":
			info.RadixTreeKeys, err = toInt(value)
		case "radix-tree-nodes":
			info.RadixTreeNodes, err = toInt(value)
		case "last-generated-id":
			info.LastGeneratedID, err = toString(value)
		case "groups":
			info.Groups, err = toInt(value)
		case "first-entry":
			if value != nil {
				info.FirstEntry, err = toEntry(value)
			}
		case "last-entry":
			if value != nil {
				info.LastEntry, err = toEntry(value)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("streams: XINFO STREAM %s: %w", key, err)
		}
	}
	return info, nil
}

func toGroupInfos(v interface{}) ([]GroupInfo, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("groups", v)
	}

	groups := make([]GroupInfo, 0, len(arr))
	for _, item := range arr {
		pairs, err := toPairs(item)
		if err != nil {
			return nil, err
		}
		var g GroupInfo
		for key, value := range pairs {
			switch key {
			case "name":
				g.Name, err = toString(value)
			case "consumers":
				g.Consumers, err = toInt(value)
			case "pending":
				g.Pending, err = toInt(value)
			case "last-delivered-id":
				g.LastDeliveredID, err = toString(value)
			}
			if err != nil {
				return nil, fmt.Errorf("streams: XINFO GROUPS %s: %w", key, err)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func toConsumerInfos(v interface{}) ([]ConsumerInfo, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("consumers", v)
	}

	consumers := make([]ConsumerInfo, 0, len(arr))
	for _, item := range arr {
		pairs, err := toPairs(item)
		if err != nil {
			return nil, err
		}
		var c ConsumerInfo
		for key, value := range pairs {
			switch key {
			case "name":
				c.Name, err = toString(value)
			case "pending":
				c.Pending, err = toInt(value)
			case "idle":
				var ms int64
				ms, err = toInt(value)
				c.Idle = time.Duration(ms) * time.Millisecond
			}
			if err != nil {
				return nil, fmt.Errorf("streams: XINFO CONSUMERS %s: %w", key, err)
			}
		}
		consumers = append(consumers, c)
	}
	return consumers, nil
}

// toPendingEntries reads an extended XPENDING reply.
func toPendingEntries(v interface{}) ([]PendingEntry, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, unexpected("pending", v)
	}

	pending := make([]PendingEntry, 0, len(arr))
	for _, item := range arr {
		row, ok := item.([]interface{})
		if !ok || len(row) != 4 {
			return nil, unexpected("pending entry", item)
		}
		var (
			p   PendingEntry
			err error
			ms  int64
		)
		if p.ID, err = toString(row[0]); err != nil {
			return nil, err
		}
		if p.Consumer, err = toString(row[1]); err != nil {
			return nil, err
		}
		if ms, err = toInt(row[2]); err != nil {
			return nil, err
		}
		p.Idle = time.Duration(ms) * time.Millisecond
		if p.DeliveryCount, err = toInt(row[3]); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, nil
}

// oldestPending reads the lowest ID from an XPENDING summary reply.
func oldestPending(v interface{}) (string, bool, error) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) < 2 {
		return "", false, unexpected("pending summary", v)
	}
	count, err := toInt(arr[0])
	if err != nil || count == 0 {
		return "", false, err
	}
	lowest, err := toString(arr[1])
	return lowest, lowest != "", err
}
