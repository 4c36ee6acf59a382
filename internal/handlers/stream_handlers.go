package handlers

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/genc-murat/crystalstream/internal/core/models"
	"github.com/genc-murat/crystalstream/internal/core/ports"
	"github.com/genc-murat/crystalstream/internal/util"
)

var (
	errSyntax     = errors.New("ERR syntax error")
	errNotInteger = errors.New("ERR value is not an integer or out of range")
)

type StreamHandlers struct {
	cache ports.Cache
}

func NewStreamHandlers(cache ports.Cache) *StreamHandlers {
	return &StreamHandlers{cache: cache}
}

func entryValue(entry models.StreamEntry) models.Value {
	return models.Array(models.Bulk(entry.ID.String()), models.BulkArray(entry.Fields))
}

func entriesValue(entries []models.StreamEntry) models.Value {
	values := make([]models.Value, len(entries))
	for i, entry := range entries {
		values[i] = entryValue(entry)
	}
	return models.Array(values...)
}

func bulks(args []models.Value) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg.Bulk
	}
	return out
}

func parseIDs(args []models.Value) ([]models.StreamID, error) {
	ids := make([]models.StreamID, len(args))
	for i, arg := range args {
		id, err := models.ParseStreamID(arg.Bulk, 0)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func parseCount(v models.Value) (int, error) {
	n, err := util.ParseInt(v)
	if err != nil {
		return 0, errNotInteger
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// parseMaxLen reads "MAXLEN [=|~] n" starting at args[i] (the MAXLEN
// keyword) and returns the index after it.
func parseMaxLen(args []models.Value, i int) (int, int, error) {
	i++
	if i < len(args) && (args[i].Bulk == "~" || args[i].Bulk == "=") {
		i++
	}
	if i >= len(args) {
		return 0, 0, errSyntax
	}
	n, err := util.ParseInt(args[i])
	if err != nil {
		return 0, 0, errNotInteger
	}
	if n < 0 {
		return 0, 0, errors.New("ERR The MAXLEN argument must be >= 0.")
	}
	return n, i + 1, nil
}

// HandleXAdd handles XADD key [NOMKSTREAM] [MAXLEN [=|~] n] id field value ...
func (h *StreamHandlers) HandleXAdd(args []models.Value) models.Value {
	if len(args) < 4 {
		return util.WrongArgs("XADD")
	}

	key := args[0].Bulk
	maxLen := -1
	noMkStream := false

	i := 1
options:
	for i < len(args) {
		switch util.Upper(args[i]) {
		case "NOMKSTREAM":
			noMkStream = true
			i++
		case "MAXLEN":
			n, next, err := parseMaxLen(args, i)
			if err != nil {
				return util.ToValue(err)
			}
			maxLen, i = n, next
		default:
			break options
		}
	}

	rest := args[i:]
	if len(rest) < 3 || (len(rest)-1)%2 != 0 {
		return util.WrongArgs("XADD")
	}

	id, err := h.cache.XAdd(key, rest[0].Bulk, bulks(rest[1:]), maxLen, noMkStream)
	if err != nil {
		return util.ToValue(err)
	}
	if id == "" {
		return models.Null()
	}
	return models.Bulk(id)
}

func (h *StreamHandlers) HandleXLen(args []models.Value) models.Value {
	if len(args) != 1 {
		return util.WrongArgs("XLEN")
	}

	count, err := h.cache.XLen(args[0].Bulk)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(count)
}

// HandleXRange handles XRANGE key start end [COUNT n]. Bounds accept "-",
// "+", incomplete IDs and the "(" exclusive prefix.
func (h *StreamHandlers) HandleXRange(args []models.Value) models.Value {
	if len(args) != 3 && len(args) != 5 {
		return util.WrongArgs("XRANGE")
	}

	start, err := models.ParseRangeBound(args[1].Bulk, false)
	if err != nil {
		return util.ToValue(err)
	}
	end, err := models.ParseRangeBound(args[2].Bulk, true)
	if err != nil {
		return util.ToValue(err)
	}

	count := 0
	if len(args) == 5 {
		if util.Upper(args[3]) != "COUNT" {
			return util.ToValue(errSyntax)
		}
		if count, err = parseCount(args[4]); err != nil {
			return util.ToValue(err)
		}
		if count == 0 {
			return models.Array()
		}
	}

	if end.Less(start) {
		return models.Array()
	}

	entries, err := h.cache.XRange(args[0].Bulk, start, end, count)
	if err != nil {
		return util.ToValue(err)
	}
	return entriesValue(entries)
}

// readRequest is a parsed XREAD / XREADGROUP call.
type readRequest struct {
	count     int
	block     time.Duration
	blocking  bool
	group     string
	consumer  string
	noAck     bool
	keys      []string
	ids       []string
	idsOffset int
}

func parseRead(args []models.Value, cmd string, withGroup bool) (*readRequest, error) {
	req := &readRequest{}

	for i := 0; i < len(args); {
		switch util.Upper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return nil, errSyntax
			}
			count, err := parseCount(args[i+1])
			if err != nil {
				return nil, err
			}
			req.count = count
			i += 2
		case "BLOCK":
			if i+1 >= len(args) {
				return nil, errSyntax
			}
			block, err := util.ParseMillis(args[i+1])
			if err != nil {
				return nil, err
			}
			req.block, req.blocking = block, true
			i += 2
		case "NOACK":
			if !withGroup {
				return nil, errSyntax
			}
			req.noAck = true
			i++
		case "GROUP":
			if !withGroup || i+2 >= len(args) {
				return nil, errSyntax
			}
			req.group, req.consumer = args[i+1].Bulk, args[i+2].Bulk
			i += 3
		case "STREAMS":
			rest := args[i+1:]
			if len(rest) == 0 || len(rest)%2 != 0 {
				return nil, fmt.Errorf("ERR Unbalanced '%s' list of streams: for each stream key an ID or '$' must be specified.", strings.ToLower(cmd))
			}
			n := len(rest) / 2
			req.keys = bulks(rest[:n])
			req.ids = bulks(rest[n:])
			req.idsOffset = i + 1 + n
			i = len(args)
		default:
			return nil, errSyntax
		}
	}

	if len(req.keys) == 0 {
		return nil, errSyntax
	}
	if withGroup && req.group == "" {
		return nil, fmt.Errorf("ERR Missing GROUP option for %s", cmd)
	}
	return req, nil
}

// HandleXRead handles XREAD [COUNT n] [BLOCK ms] STREAMS key ... id ...
// A "$" id is resolved once, on the first attempt, so a blocked reader only
// sees entries added after it started waiting.
func (h *StreamHandlers) HandleXRead(args []models.Value) (models.Value, *Block) {
	req, err := parseRead(args, "XREAD", false)
	if err != nil {
		return util.ToValue(err), nil
	}

	retry := args
	resolved := false
	var streams []models.Value
	for i, key := range req.keys {
		var after models.StreamID
		if req.ids[i] == "$" {
			if after, err = h.cache.XLastID(key); err != nil {
				return util.ToValue(err), nil
			}
			if !resolved {
				retry = append([]models.Value(nil), args...)
				resolved = true
			}
			retry[req.idsOffset+i] = models.Bulk(after.String())
		} else if after, err = models.ParseStreamID(req.ids[i], 0); err != nil {
			return util.ToValue(err), nil
		}

		entries, err := h.cache.XRead(key, after, req.count)
		if err != nil {
			return util.ToValue(err), nil
		}
		if len(entries) > 0 {
			streams = append(streams, models.Array(models.Bulk(key), entriesValue(entries)))
		}
	}

	if len(streams) > 0 {
		return models.Array(streams...), nil
	}
	if !req.blocking {
		return models.NullArray(), nil
	}
	return models.NullArray(), &Block{Timeout: req.block, Args: retry}
}

// HandleXReadGroup handles
// XREADGROUP GROUP group consumer [COUNT n] [BLOCK ms] [NOACK] STREAMS key ... id ...
// Only ">" reads can block; history reads reply immediately.
func (h *StreamHandlers) HandleXReadGroup(args []models.Value) (models.Value, *Block) {
	req, err := parseRead(args, "XREADGROUP", true)
	if err != nil {
		return util.ToValue(err), nil
	}

	var streams []models.Value
	history := false
	for i, key := range req.keys {
		entries, err := h.cache.XReadGroup(key, req.group, req.consumer, req.ids[i], req.count, req.noAck)
		if err != nil {
			return util.ToValue(err), nil
		}
		if req.ids[i] != ">" {
			history = true
			streams = append(streams, models.Array(models.Bulk(key), entriesValue(entries)))
			continue
		}
		if len(entries) > 0 {
			streams = append(streams, models.Array(models.Bulk(key), entriesValue(entries)))
		}
	}

	if len(streams) > 0 || history {
		return models.Array(streams...), nil
	}
	if !req.blocking {
		return models.NullArray(), nil
	}
	return models.NullArray(), &Block{Timeout: req.block, Args: args}
}

func (h *StreamHandlers) HandleXAck(args []models.Value) models.Value {
	if len(args) < 3 {
		return util.WrongArgs("XACK")
	}

	ids, err := parseIDs(args[2:])
	if err != nil {
		return util.ToValue(err)
	}

	count, err := h.cache.XAck(args[0].Bulk, args[1].Bulk, ids...)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(count)
}

// HandleXClaim handles XCLAIM key group consumer min-idle-time id ... [JUSTID]
func (h *StreamHandlers) HandleXClaim(args []models.Value) models.Value {
	if len(args) < 5 {
		return util.WrongArgs("XCLAIM")
	}

	minIdle, err := util.ParseMillis(args[3])
	if err != nil {
		return models.Error("ERR Invalid min-idle-time argument for XCLAIM")
	}

	idArgs := args[4:]
	justID := false
	if n := len(idArgs); n > 0 && util.Upper(idArgs[n-1]) == "JUSTID" {
		justID = true
		idArgs = idArgs[:n-1]
	}

	ids, err := parseIDs(idArgs)
	if err != nil {
		return util.ToValue(err)
	}

	entries, err := h.cache.XClaim(args[0].Bulk, args[1].Bulk, args[2].Bulk, minIdle, ids)
	if err != nil {
		return util.ToValue(err)
	}

	if justID {
		out := make([]models.Value, len(entries))
		for i, entry := range entries {
			out[i] = models.Bulk(entry.ID.String())
		}
		return models.Array(out...)
	}
	return entriesValue(entries)
}

// HandleXPending handles both forms:
//
//	XPENDING key group
//	XPENDING key group [IDLE ms] start end count [consumer]
func (h *StreamHandlers) HandleXPending(args []models.Value) models.Value {
	if len(args) < 2 {
		return util.WrongArgs("XPENDING")
	}

	key, group := args[0].Bulk, args[1].Bulk
	if len(args) == 2 {
		return h.pendingSummary(key, group)
	}

	i := 2
	var minIdle time.Duration
	if util.Upper(args[i]) == "IDLE" {
		if len(args) < 4 {
			return util.ToValue(errSyntax)
		}
		idle, err := util.ParseMillis(args[3])
		if err != nil {
			return util.ToValue(err)
		}
		minIdle = idle
		i = 4
	}

	rest := args[i:]
	if len(rest) != 3 && len(rest) != 4 {
		return util.ToValue(errSyntax)
	}

	start, err := models.ParseRangeBound(rest[0].Bulk, false)
	if err != nil {
		return util.ToValue(err)
	}
	end, err := models.ParseRangeBound(rest[1].Bulk, true)
	if err != nil {
		return util.ToValue(err)
	}
	count, err := parseCount(rest[2])
	if err != nil {
		return util.ToValue(err)
	}
	consumer := ""
	if len(rest) == 4 {
		consumer = rest[3].Bulk
	}

	pending, err := h.cache.XPending(key, group, start, end, count, minIdle, consumer)
	if err != nil {
		return util.ToValue(err)
	}

	rows := make([]models.Value, len(pending))
	for j, p := range pending {
		rows[j] = models.Array(
			models.Bulk(p.ID),
			models.Bulk(p.Consumer),
			models.Integer(int(p.Idle.Milliseconds())),
			models.Integer(p.Deliveries),
		)
	}
	return models.Array(rows...)
}

func (h *StreamHandlers) pendingSummary(key, group string) models.Value {
	summary, err := h.cache.XPendingSummary(key, group)
	if err != nil {
		return util.ToValue(err)
	}
	if summary.Count == 0 {
		return models.Array(models.Integer(0), models.Null(), models.Null(), models.NullArray())
	}

	names := make([]string, 0, len(summary.Consumers))
	for name := range summary.Consumers {
		names = append(names, name)
	}
	sort.Strings(names)

	consumers := make([]models.Value, len(names))
	for i, name := range names {
		consumers[i] = models.Array(
			models.Bulk(name),
			models.Bulk(strconv.FormatInt(summary.Consumers[name], 10)),
		)
	}

	return models.Array(
		models.Integer(int(summary.Count)),
		models.Bulk(summary.Lowest),
		models.Bulk(summary.Highest),
		models.Array(consumers...),
	)
}

func (h *StreamHandlers) HandleXDel(args []models.Value) models.Value {
	if len(args) < 2 {
		return util.WrongArgs("XDEL")
	}

	ids, err := parseIDs(args[1:])
	if err != nil {
		return util.ToValue(err)
	}

	count, err := h.cache.XDel(args[0].Bulk, ids...)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(count)
}

// HandleXTrim handles XTRIM key MAXLEN [=|~] n. Approximate trimming is
// applied exactly.
func (h *StreamHandlers) HandleXTrim(args []models.Value) models.Value {
	if len(args) < 3 {
		return util.WrongArgs("XTRIM")
	}
	if util.Upper(args[1]) != "MAXLEN" {
		return util.ToValue(errSyntax)
	}

	maxLen, next, err := parseMaxLen(args, 1)
	if err != nil {
		return util.ToValue(err)
	}
	if next != len(args) {
		return util.ToValue(errSyntax)
	}

	count, err := h.cache.XTrim(args[0].Bulk, maxLen)
	if err != nil {
		return util.ToValue(err)
	}
	return models.Integer(count)
}

func (h *StreamHandlers) HandleXGroup(args []models.Value) models.Value {
	if len(args) < 1 {
		return util.WrongArgs("XGROUP")
	}

	sub := util.Upper(args[0])
	switch sub {
	case "CREATE":
		if len(args) < 4 {
			return util.WrongArgs("XGROUP|CREATE")
		}
		mkStream := false
		for _, opt := range args[4:] {
			if util.Upper(opt) != "MKSTREAM" {
				return util.ToValue(errSyntax)
			}
			mkStream = true
		}
		if err := h.cache.XGroupCreate(args[1].Bulk, args[2].Bulk, args[3].Bulk, mkStream); err != nil {
			return util.ToValue(err)
		}
		return models.OK()

	case "DESTROY":
		if len(args) != 3 {
			return util.WrongArgs("XGROUP|DESTROY")
		}
		destroyed, err := h.cache.XGroupDestroy(args[1].Bulk, args[2].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		return util.ToValue(destroyed)

	case "CREATECONSUMER":
		if len(args) != 4 {
			return util.WrongArgs("XGROUP|CREATECONSUMER")
		}
		created, err := h.cache.XGroupCreateConsumer(args[1].Bulk, args[2].Bulk, args[3].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		return util.ToValue(created)

	case "DELCONSUMER":
		if len(args) != 4 {
			return util.WrongArgs("XGROUP|DELCONSUMER")
		}
		pending, err := h.cache.XGroupDelConsumer(args[1].Bulk, args[2].Bulk, args[3].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		return models.Integer(pending)
	}

	return models.Errorf("ERR unknown subcommand '%s'. Try XGROUP HELP.", args[0].Bulk)
}

func (h *StreamHandlers) HandleXInfo(args []models.Value) models.Value {
	if len(args) < 2 {
		return util.WrongArgs("XINFO")
	}

	switch util.Upper(args[0]) {
	case "STREAM":
		info, err := h.cache.XInfoStream(args[1].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		first, last := models.Null(), models.Null()
		if info.FirstEntry != nil {
			first = entryValue(*info.FirstEntry)
		}
		if info.LastEntry != nil {
			last = entryValue(*info.LastEntry)
		}
		return models.Array(
			models.Bulk("length"), models.Integer(int(info.Length)),
			models.Bulk("radix-tree-keys"), models.Integer(int(info.RadixTreeKeys)),
			models.Bulk("radix-tree-nodes"), models.Integer(int(info.RadixTreeNodes)),
			models.Bulk("last-generated-id"), models.Bulk(info.LastGeneratedID),
			models.Bulk("groups"), models.Integer(int(info.Groups)),
			models.Bulk("first-entry"), first,
			models.Bulk("last-entry"), last,
		)

	case "GROUPS":
		groups, err := h.cache.XInfoGroups(args[1].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		out := make([]models.Value, len(groups))
		for i, g := range groups {
			out[i] = models.Array(
				models.Bulk("name"), models.Bulk(g.Name),
				models.Bulk("consumers"), models.Integer(int(g.Consumers)),
				models.Bulk("pending"), models.Integer(int(g.Pending)),
				models.Bulk("last-delivered-id"), models.Bulk(g.LastDeliveredID),
			)
		}
		return models.Array(out...)

	case "CONSUMERS":
		if len(args) != 3 {
			return util.WrongArgs("XINFO|CONSUMERS")
		}
		consumers, err := h.cache.XInfoConsumers(args[1].Bulk, args[2].Bulk)
		if err != nil {
			return util.ToValue(err)
		}
		out := make([]models.Value, len(consumers))
		for i, c := range consumers {
			out[i] = models.Array(
				models.Bulk("name"), models.Bulk(c.Name),
				models.Bulk("pending"), models.Integer(int(c.Pending)),
				models.Bulk("idle"), models.Integer(int(c.Idle.Milliseconds())),
			)
		}
		return models.Array(out...)
	}

	return models.Errorf("ERR unknown subcommand '%s'. Try XINFO HELP.", args[0].Bulk)
}
