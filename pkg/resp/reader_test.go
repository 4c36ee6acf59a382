package resp

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

func TestReader_Read(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Value
	}{
		{
			name:  "simple string",
			input: "+OK\r\n",
			want:  models.Value{Type: "string", Str: "OK"},
		},
		{
			name:  "error",
			input: "-NOGROUP No such consumer group\r\n",
			want:  models.Value{Type: "error", Str: "NOGROUP No such consumer group"},
		},
		{
			name:  "integer",
			input: ":42\r\n",
			want:  models.Value{Type: "integer", Num: 42},
		},
		{
			name:  "bulk string with CRLF inside",
			input: "$4\r\na\r\nb\r\n",
			want:  models.Value{Type: "bulk", Bulk: "a\r\nb"},
		},
		{
			name:  "null bulk",
			input: "$-1\r\n",
			want:  models.Value{Type: "null"},
		},
		{
			name:  "null array",
			input: "*-1\r\n",
			want:  models.Value{Type: "nullarray"},
		},
		{
			name:  "command",
			input: "*3\r\n$4\r\nXLEN\r\n$2\r\ns1\r\n$0\r\n\r\n",
			want:  models.Command("XLEN", "s1", ""),
		},
		{
			name:  "inline command",
			input: "PING hello\r\n",
			want:  models.Command("PING", "hello"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewReader(strings.NewReader(tt.input)).Read()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReader_ProtocolErrors(t *testing.T) {
	inputs := []string{
		":abc\r\n",
		"$x\r\n",
		"$3\r\nabcde\r\n",
		"*-5\r\n",
		"+OK\n",
	}

	for _, input := range inputs {
		_, err := NewReader(strings.NewReader(input)).Read()
		assert.True(t, errors.Is(err, ErrProtocol), "input %q: got %v", input, err)
	}
}

func TestReader_EOF(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).Read()
	assert.Equal(t, io.EOF, err)
}

func TestReaderWriter_RoundTrip(t *testing.T) {
	value := models.Array(
		models.Bulk("s1"),
		models.Array(
			models.Array(models.Bulk("1-0"), models.BulkArray([]string{"a", "1", "b", "{\"c\":2}"})),
		),
		models.Integer(7),
		models.Null(),
	)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(value))

	got, err := NewReader(&buf).Read()
	require.NoError(t, err)
	assert.Equal(t, value, got)
}
