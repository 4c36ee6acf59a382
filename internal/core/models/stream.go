package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidStreamID = errors.New("ERR Invalid stream ID specified as stream command argument")

// StreamID is the <ms>-<seq> identifier of a stream entry.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

var (
	MinStreamID = StreamID{}
	MaxStreamID = StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}
)

func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

func (id StreamID) Compare(o StreamID) int {
	switch {
	case id.Ms < o.Ms:
		return -1
	case id.Ms > o.Ms:
		return 1
	case id.Seq < o.Seq:
		return -1
	case id.Seq > o.Seq:
		return 1
	}
	return 0
}

func (id StreamID) Less(o StreamID) bool {
	return id.Compare(o) < 0
}

func (id StreamID) IsZero() bool {
	return id == MinStreamID
}

// Next returns the smallest ID greater than id.
func (id StreamID) Next() (StreamID, bool) {
	if id.Seq < math.MaxUint64 {
		return StreamID{Ms: id.Ms, Seq: id.Seq + 1}, true
	}
	if id.Ms < math.MaxUint64 {
		return StreamID{Ms: id.Ms + 1}, true
	}
	return id, false
}

// Prev returns the greatest ID smaller than id.
func (id StreamID) Prev() (StreamID, bool) {
	if id.Seq > 0 {
		return StreamID{Ms: id.Ms, Seq: id.Seq - 1}, true
	}
	if id.Ms > 0 {
		return StreamID{Ms: id.Ms - 1, Seq: math.MaxUint64}, true
	}
	return id, false
}

// ParseStreamID parses a complete or incomplete ID. An incomplete ID
// ("<ms>") takes missingSeq as its sequence part.
func ParseStreamID(s string, missingSeq uint64) (StreamID, error) {
	msPart, seqPart, hasSeq := strings.Cut(s, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	if !hasSeq {
		return StreamID{Ms: ms, Seq: missingSeq}, nil
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// ParseRangeBound parses an XRANGE/XPENDING bound: "-", "+", an optional
// "(" exclusive prefix and incomplete IDs. Exclusive bounds are converted
// into the equivalent inclusive bound.
func ParseRangeBound(s string, isEnd bool) (StreamID, error) {
	switch s {
	case "-":
		return MinStreamID, nil
	case "+":
		return MaxStreamID, nil
	}

	exclusive := strings.HasPrefix(s, "(")
	raw := strings.TrimPrefix(s, "(")
	var missing uint64
	if isEnd {
		missing = math.MaxUint64
	}
	id, err := ParseStreamID(raw, missing)
	if err != nil {
		return StreamID{}, err
	}
	if !exclusive {
		return id, nil
	}

	var ok bool
	if isEnd {
		id, ok = id.Prev()
	} else {
		id, ok = id.Next()
	}
	if !ok {
		return StreamID{}, fmt.Errorf("ERR invalid start ID for the interval")
	}
	return id, nil
}

// StreamEntry keeps fields as ordered field/value pairs.
type StreamEntry struct {
	ID     StreamID
	Fields []string
}

type Stream struct {
	Entries      []StreamEntry
	LastID       StreamID
	EntriesAdded int64
	Groups       map[string]*StreamConsumerGroup
}

func NewStream() *Stream {
	return &Stream{Groups: make(map[string]*StreamConsumerGroup)}
}

// Search returns the index of the first entry with ID >= id.
func (s *Stream) Search(id StreamID) int {
	return sort.Search(len(s.Entries), func(i int) bool {
		return !s.Entries[i].ID.Less(id)
	})
}

// Find returns the entry with exactly id.
func (s *Stream) Find(id StreamID) (StreamEntry, bool) {
	i := s.Search(id)
	if i < len(s.Entries) && s.Entries[i].ID == id {
		return s.Entries[i], true
	}
	return StreamEntry{}, false
}

type StreamConsumerGroup struct {
	Name            string
	LastDeliveredID StreamID
	Consumers       map[string]*StreamConsumer
	Pending         map[StreamID]*PendingMessage
}

func NewStreamConsumerGroup(name string, lastID StreamID) *StreamConsumerGroup {
	return &StreamConsumerGroup{
		Name:            name,
		LastDeliveredID: lastID,
		Consumers:       make(map[string]*StreamConsumer),
		Pending:         make(map[StreamID]*PendingMessage),
	}
}

// SortedPending returns the group's pending messages ordered by ID.
func (g *StreamConsumerGroup) SortedPending() []*PendingMessage {
	out := make([]*PendingMessage, 0, len(g.Pending))
	for _, p := range g.Pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

type StreamConsumer struct {
	Name     string
	SeenTime time.Time
}

type PendingMessage struct {
	ID           StreamID
	Consumer     string
	DeliveryTime time.Time
	Deliveries   int
}

// StreamGroup is the XINFO GROUPS view of a group.
type StreamGroup struct {
	Name            string
	Consumers       int64
	Pending         int64
	LastDeliveredID string
}

// StreamConsumerInfo is the XINFO CONSUMERS view of a consumer.
type StreamConsumerInfo struct {
	Name    string
	Pending int64
	Idle    time.Duration
}

type StreamInfo struct {
	Length          int64
	RadixTreeKeys   int64
	RadixTreeNodes  int64
	Groups          int64
	LastGeneratedID string
	FirstEntry      *StreamEntry
	LastEntry       *StreamEntry
}

// PendingSummary is the reply of the XPENDING summary form.
type PendingSummary struct {
	Count     int64
	Lowest    string
	Highest   string
	Consumers map[string]int64
}

// PendingDetail is one row of the XPENDING extended form.
type PendingDetail struct {
	ID         string
	Consumer   string
	Idle       time.Duration
	Deliveries int
}
