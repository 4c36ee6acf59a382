package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

const maxBulkLen = 512 << 20

var ErrProtocol = errors.New("resp: protocol error")

type Reader struct {
	rd *bufio.Reader
}

func NewReader(rd io.Reader) *Reader {
	return &Reader{rd: bufio.NewReader(rd)}
}

// Read decodes the next value. Inline commands ("PING\r\n") are returned
// as an array of bulk strings, as the store treats them as requests.
func (r *Reader) Read() (models.Value, error) {
	typ, err := r.rd.ReadByte()
	if err != nil {
		return models.Value{}, err
	}

	switch typ {
	case '+':
		return r.readSimpleString()
	case '-':
		return r.readError()
	case ':':
		return r.readInteger()
	case '$':
		return r.readBulkString()
	case '*':
		return r.readArray()
	default:
		if err := r.rd.UnreadByte(); err != nil {
			return models.Value{}, err
		}
		return r.readInline()
	}
}

func (r *Reader) readLine() (string, error) {
	line, err := r.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readSimpleString() (models.Value, error) {
	line, err := r.readLine()
	if err != nil {
		return models.Value{}, err
	}
	return models.Value{Type: "string", Str: line}, nil
}

func (r *Reader) readError() (models.Value, error) {
	line, err := r.readLine()
	if err != nil {
		return models.Value{}, err
	}
	return models.Value{Type: "error", Str: line}, nil
}

func (r *Reader) readInteger() (models.Value, error) {
	line, err := r.readLine()
	if err != nil {
		return models.Value{}, err
	}
	num, err := strconv.Atoi(line)
	if err != nil {
		return models.Value{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
	}
	return models.Value{Type: "integer", Num: num}, nil
}

func (r *Reader) readBulkString() (models.Value, error) {
	line, err := r.readLine()
	if err != nil {
		return models.Value{}, err
	}

	length, err := strconv.Atoi(line)
	if err != nil {
		return models.Value{}, fmt.Errorf("%w: invalid bulk length %q", ErrProtocol, line)
	}

	if length == -1 {
		return models.Value{Type: "null"}, nil
	}
	if length < 0 || length > maxBulkLen {
		return models.Value{}, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, length)
	}

	bulk := make([]byte, length+2)
	if _, err := io.ReadFull(r.rd, bulk); err != nil {
		return models.Value{}, err
	}
	if bulk[length] != '\r' || bulk[length+1] != '\n' {
		return models.Value{}, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
	}

	return models.Value{Type: "bulk", Bulk: string(bulk[:length])}, nil
}

func (r *Reader) readArray() (models.Value, error) {
	line, err := r.readLine()
	if err != nil {
		return models.Value{}, err
	}

	length, err := strconv.Atoi(line)
	if err != nil {
		return models.Value{}, fmt.Errorf("%w: invalid array length %q", ErrProtocol, line)
	}

	if length == -1 {
		return models.Value{Type: "nullarray"}, nil
	}
	if length < 0 {
		return models.Value{}, fmt.Errorf("%w: invalid array length %d", ErrProtocol, length)
	}

	array := make([]models.Value, length)
	for i := 0; i < length; i++ {
		value, err := r.Read()
		if err != nil {
			return models.Value{}, err
		}
		array[i] = value
	}

	return models.Value{Type: "array", Array: array}, nil
}

func (r *Reader) readInline() (models.Value, error) {
	line, err := r.rd.ReadString('\n')
	if err != nil {
		return models.Value{}, err
	}
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	return models.BulkArray(fields), nil
}
