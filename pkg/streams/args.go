package streams

import "time"

// AddOptions configures retention on append.
type AddOptions struct {
	// MaxLen trims the stream to about this many entries. Zero disables it.
	MaxLen int64
	// Exact forces an exact trim instead of the cheaper approximate one.
	Exact bool
}

type ReadOptions struct {
	Count int64
	// Block waits up to this long for new entries. Zero does not block.
	Block time.Duration
	// BlockForever waits without a timeout and overrides Block.
	BlockForever bool
}

type RangeOptions struct {
	Start string
	End   string
	Count int64
	// Exclusive skips Start itself.
	Exclusive bool
}

type PendingOptions struct {
	Start string
	End   string
	// Count zero derives the count from the group's pending total.
	Count    int64
	MinIdle  time.Duration
	Consumer string
}

// AddArgs returns the XADD arguments after the key:
// [MAXLEN [~] n] id field value ...
func AddArgs(id string, fields []string, opts *AddOptions) []interface{} {
	args := make([]interface{}, 0, len(fields)+4)
	if opts != nil && opts.MaxLen > 0 {
		args = append(args, retention(opts.MaxLen, opts.Exact)...)
	}
	args = append(args, id)
	for _, f := range fields {
		args = append(args, f)
	}
	return args
}

// ReadArgs returns the XREAD arguments: [COUNT n] [BLOCK ms] STREAMS key id
func ReadArgs(key, id string, opts ReadOptions) []interface{} {
	args := make([]interface{}, 0, 7)
	if opts.Count > 0 {
		args = append(args, "COUNT", opts.Count)
	}
	switch {
	case opts.BlockForever:
		args = append(args, "BLOCK", int64(0))
	case opts.Block > 0:
		args = append(args, "BLOCK", opts.Block.Milliseconds())
	}
	return append(args, "STREAMS", key, id)
}

// ReadGroupArgs returns the XREADGROUP arguments:
// GROUP group consumer [COUNT n] [BLOCK ms] STREAMS key id
func ReadGroupArgs(key, id, group, consumer string, opts ReadOptions) []interface{} {
	return append([]interface{}{"GROUP", group, consumer}, ReadArgs(key, id, opts)...)
}

// RangeArgs returns the XRANGE arguments after the key: start end [COUNT n]
func RangeArgs(opts RangeOptions) []interface{} {
	start, end := opts.Start, opts.End
	if start == "" {
		start = "-"
	}
	if end == "" {
		end = "+"
	}
	if opts.Exclusive {
		start = "(" + start
	}

	args := []interface{}{start, end}
	if opts.Count > 0 {
		args = append(args, "COUNT", opts.Count)
	}
	return args
}

// TrimArgs returns the XTRIM arguments after the key: MAXLEN [~] n
func TrimArgs(maxLen int64, exact bool) []interface{} {
	return retention(maxLen, exact)
}

// ClaimArgs returns the XCLAIM arguments after the key:
// group consumer min-idle-ms id ...
// The protocol requires min-idle, so a zero minIdle is sent as 0.
func ClaimArgs(group, consumer string, ids []string, minIdle time.Duration) []interface{} {
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, group, consumer, minIdle.Milliseconds())
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// PendingArgs returns the extended XPENDING arguments after the key:
// group [IDLE ms] start end count [consumer]
func PendingArgs(group string, opts PendingOptions) []interface{} {
	start, end := opts.Start, opts.End
	if start == "" {
		start = "-"
	}
	if end == "" {
		end = "+"
	}

	args := []interface{}{group}
	if opts.MinIdle > 0 {
		args = append(args, "IDLE", opts.MinIdle.Milliseconds())
	}
	args = append(args, start, end, opts.Count)
	if opts.Consumer != "" {
		args = append(args, opts.Consumer)
	}
	return args
}

func retention(maxLen int64, exact bool) []interface{} {
	if exact {
		return []interface{}{"MAXLEN", maxLen}
	}
	return []interface{}{"MAXLEN", "~", maxLen}
}
