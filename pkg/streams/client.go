// Package streams is a consumer-group client for Redis-protocol streams:
// a base client for the stream commands, a consumer runtime that joins a
// group, recovers abandoned work and listens for new entries, and a
// producer for the append path.
package streams

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	markerKeyPrefix = "lastAcknowledged:"
	markerField     = "lastAcknowledged"
)

type Options struct {
	// Prefix namespaces every stream and marker key.
	Prefix string
	// ID identifies this client as a consumer. Defaults to a random UUID.
	ID     string
	Logger *zap.Logger
	// Codec defaults to JSONFieldCodec.
	Codec FieldCodec
}

// Client runs stream commands under a key prefix. It is safe for
// concurrent use.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	id     string
	logger *zap.Logger
	codec  FieldCodec
}

// beforeMarkerCommit runs between reading and writing the marker. Tests use
// it to interleave a concurrent writer.
var beforeMarkerCommit func()

func NewClient(rdb redis.UniversalClient, opts Options) *Client {
	c := &Client{
		rdb:    rdb,
		prefix: opts.Prefix,
		id:     opts.ID,
		logger: opts.Logger,
		codec:  opts.Codec,
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.codec == nil {
		c.codec = JSONFieldCodec{}
	}
	return c
}

// ID returns the consumer identity of this client.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) Codec() FieldCodec {
	return c.codec
}

// Key returns the full store key for key.
func (c *Client) Key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// MarkerKey returns the hash key holding the last acknowledged ID of group.
func (c *Client) MarkerKey(group string) string {
	return c.Key(markerKeyPrefix + group)
}

func (c *Client) do(ctx context.Context, cmd, key string, args ...interface{}) (interface{}, error) {
	return c.rdb.Do(ctx, append([]interface{}{cmd, key}, args...)...).Result()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.Key(key)).Result()
	return n == 1, err
}

func (c *Client) Info(ctx context.Context, key string) (*StreamInfo, error) {
	reply, err := c.rdb.Do(ctx, "XINFO", "STREAM", c.Key(key)).Result()
	if err != nil {
		return nil, err
	}
	return toStreamInfo(reply)
}

func (c *Client) GroupInfo(ctx context.Context, key string) ([]GroupInfo, error) {
	reply, err := c.rdb.Do(ctx, "XINFO", "GROUPS", c.Key(key)).Result()
	if err != nil {
		return nil, err
	}
	return toGroupInfos(reply)
}

func (c *Client) ConsumerInfo(ctx context.Context, key, group string) ([]ConsumerInfo, error) {
	reply, err := c.rdb.Do(ctx, "XINFO", "CONSUMERS", c.Key(key), group).Result()
	if err != nil {
		return nil, err
	}
	return toConsumerInfos(reply)
}

// GroupCreate creates group at the end of the stream, creating the stream
// when it does not exist. An existing group is not an error.
func (c *Client) GroupCreate(ctx context.Context, key, group string) error {
	err := c.rdb.Do(ctx, "XGROUP", "CREATE", c.Key(key), group, "$", "MKSTREAM").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	if err == nil {
		c.logger.Debug("created consumer group", zap.String("stream", key), zap.String("group", group))
	}
	return err
}

// GroupDestroy removes each group. Entries are left in place.
func (c *Client) GroupDestroy(ctx context.Context, key string, groups ...string) error {
	for _, group := range groups {
		if err := c.rdb.Do(ctx, "XGROUP", "DESTROY", c.Key(key), group).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Add appends record and returns the entry ID. An empty id lets the store
// assign one.
func (c *Client) Add(ctx context.Context, key string, record Record, opts *AddOptions, id string) (string, error) {
	if id == "" {
		id = "*"
	}
	fields, err := c.codec.Encode(record)
	if err != nil {
		return "", err
	}

	reply, err := c.do(ctx, "XADD", c.Key(key), AddArgs(id, fields, opts)...)
	if err != nil {
		return "", err
	}
	return toString(reply)
}

// Read returns entries after id, "$" when empty. Nil means nothing arrived
// before the block timeout.
func (c *Client) Read(ctx context.Context, key string, opts ReadOptions, id string) ([]Entry, error) {
	if id == "" {
		id = "$"
	}
	reply, err := c.rdb.Do(ctx, append([]interface{}{"XREAD"}, ReadArgs(c.Key(key), id, opts)...)...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toStreamEntries(reply)
}

// ReadGroup reads as consumer of group. An empty id reads never delivered
// entries (">"); any other ID replays the consumer's own pending entries.
func (c *Client) ReadGroup(ctx context.Context, key, group, consumer string, opts ReadOptions, id string) ([]Entry, error) {
	if id == "" {
		id = ">"
	}
	reply, err := c.rdb.Do(ctx, append([]interface{}{"XREADGROUP"}, ReadGroupArgs(c.Key(key), id, group, consumer, opts)...)...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toStreamEntries(reply)
}

// Ack acknowledges id and then advances the group's last acknowledged
// marker. Failing to update the marker is logged, not returned: the
// acknowledgement itself has already succeeded.
func (c *Client) Ack(ctx context.Context, key, group, id string) error {
	if err := c.rdb.XAck(ctx, c.Key(key), group, id).Err(); err != nil {
		return err
	}
	c.advanceMarker(ctx, group, id)
	return nil
}

// advanceMarker moves the marker forward to id under WATCH. A concurrent
// write to the marker aborts the update without retrying. A marker that is
// not an entry ID is overwritten.
func (c *Client) advanceMarker(ctx context.Context, group, id string) {
	markerKey := c.MarkerKey(group)

	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, markerKey, markerField).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if _, _, valid := splitID(current); valid && CompareIDs(id, current) <= 0 {
			return nil
		}

		if beforeMarkerCommit != nil {
			beforeMarkerCommit()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, markerKey, markerField, id)
			return nil
		})
		return err
	}, markerKey)

	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr):
		c.logger.Warn("last acknowledged marker changed concurrently, update skipped",
			zap.String("group", group), zap.String("id", id))
	default:
		c.logger.Warn("unable to set last acknowledged marker",
			zap.String("group", group), zap.String("id", id), zap.Error(err))
	}
}

// Claim moves ids to consumer when they have been idle for at least
// minIdle. Entries deleted since delivery are left out of the result.
func (c *Client) Claim(ctx context.Context, key, group, consumer string, ids []string, minIdle time.Duration) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	reply, err := c.do(ctx, "XCLAIM", c.Key(key), ClaimArgs(group, consumer, ids, minIdle)...)
	if err != nil {
		return nil, err
	}
	return toEntries(reply)
}

// Pending lists pending entries of group. With a zero Count the group's
// reported pending total is used.
func (c *Client) Pending(ctx context.Context, key, group string, opts PendingOptions) ([]PendingEntry, error) {
	if opts.Count == 0 {
		info, err := c.groupInfo(ctx, key, group)
		if err != nil {
			return nil, err
		}
		if info.Pending == 0 {
			return nil, nil
		}
		opts.Count = info.Pending
	}

	reply, err := c.do(ctx, "XPENDING", c.Key(key), PendingArgs(group, opts)...)
	if err != nil {
		return nil, err
	}
	return toPendingEntries(reply)
}

func (c *Client) groupInfo(ctx context.Context, key, group string) (*GroupInfo, error) {
	groups, err := c.GroupInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == group {
			return &groups[i], nil
		}
	}
	return nil, ErrGroupNotFound
}

// LastAcknowledgedID returns the marker of group. ok is false when nothing
// has been acknowledged through this client yet.
func (c *Client) LastAcknowledgedID(ctx context.Context, group string) (id string, ok bool, err error) {
	id, err = c.rdb.HGet(ctx, c.MarkerKey(group), markerField).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *Client) LastDeliveredID(ctx context.Context, key, group string) (string, error) {
	info, err := c.groupInfo(ctx, key, group)
	if err != nil {
		return "", err
	}
	return info.LastDeliveredID, nil
}

func (c *Client) Range(ctx context.Context, key string, opts RangeOptions) ([]Entry, error) {
	reply, err := c.do(ctx, "XRANGE", c.Key(key), RangeArgs(opts)...)
	if err != nil {
		return nil, err
	}
	return toEntries(reply)
}

func (c *Client) Len(ctx context.Context, key string) (int64, error) {
	return c.rdb.XLen(ctx, c.Key(key)).Result()
}

func (c *Client) Del(ctx context.Context, key string, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return c.rdb.XDel(ctx, c.Key(key), ids...).Result()
}

// PaginateDelRange deletes the entries in the range Count at a time and
// returns how many were deleted. Each page starts after the last ID of the
// previous one; a short page ends the walk.
func (c *Client) PaginateDelRange(ctx context.Context, key string, opts RangeOptions) (int64, error) {
	if opts.Count <= 0 {
		return 0, ErrInvalidOptions
	}

	var deleted int64
	page := opts
	for {
		entries, err := c.Range(ctx, key, page)
		if err != nil {
			return deleted, err
		}
		if len(entries) == 0 {
			break
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		n, err := c.Del(ctx, key, ids...)
		deleted += n
		if err != nil {
			return deleted, err
		}

		if int64(len(entries)) < opts.Count {
			break
		}
		page = RangeOptions{Start: ids[len(ids)-1], End: opts.End, Count: opts.Count, Exclusive: true}
	}

	c.logger.Debug("paginated delete completed", zap.String("stream", key), zap.Int64("deleted", deleted))
	return deleted, nil
}

// Trim caps the stream at maxLen entries, approximately unless exact.
func (c *Client) Trim(ctx context.Context, key string, maxLen int64, exact bool) (int64, error) {
	reply, err := c.do(ctx, "XTRIM", c.Key(key), TrimArgs(maxLen, exact)...)
	if err != nil {
		return 0, err
	}
	return toInt(reply)
}

// ClearStream removes every entry. Groups and markers are kept.
func (c *Client) ClearStream(ctx context.Context, key string) error {
	_, err := c.Trim(ctx, key, 0, true)
	return err
}

type CutPoint string

const (
	CutPointLastAcknowledged CutPoint = "lastAcknowledged"
	CutPointLastDelivered    CutPoint = "lastDelivered"
)

type TrimOptions struct {
	MaxLength int64
	CutPoint  CutPoint
	PageCount int64
}

// TrimFromLastID deletes entries up to the group's cut point once the
// stream is longer than MaxLength. Entries still pending in the group are
// never deleted: the range stops before the oldest of them. Without a cut
// point nothing is deleted.
func (c *Client) TrimFromLastID(ctx context.Context, key, group string, opts TrimOptions) (int64, error) {
	length, err := c.Len(ctx, key)
	if err != nil || length <= opts.MaxLength {
		return 0, err
	}

	var cut string
	switch opts.CutPoint {
	case CutPointLastAcknowledged:
		id, ok, err := c.LastAcknowledgedID(ctx, group)
		if err != nil || !ok {
			return 0, err
		}
		cut = id
	case CutPointLastDelivered:
		if cut, err = c.LastDeliveredID(ctx, key, group); err != nil {
			return 0, err
		}
	default:
		return 0, ErrInvalidOptions
	}

	end := cut
	reply, err := c.rdb.Do(ctx, "XPENDING", c.Key(key), group).Result()
	if err != nil {
		return 0, err
	}
	oldest, ok, err := oldestPending(reply)
	if err != nil {
		return 0, err
	}
	if ok && CompareIDs(oldest, cut) <= 0 {
		end = "(" + oldest
	}

	info, err := c.Info(ctx, key)
	if err != nil {
		return 0, err
	}
	if info.FirstEntry == nil {
		return 0, nil
	}

	return c.PaginateDelRange(ctx, key, RangeOptions{Start: info.FirstEntry.ID, End: end, Count: opts.PageCount})
}
