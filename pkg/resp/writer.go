package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/genc-murat/crystalstream/internal/core/models"
)

// Writer encodes RESP2 values. Each top-level Write is flushed as one unit.
type Writer struct {
	wr  io.Writer
	buf *bufio.Writer
}

func NewWriter(wr io.Writer) *Writer {
	return &Writer{wr: wr, buf: bufio.NewWriter(wr)}
}

func (w *Writer) Write(v models.Value) error {
	if err := w.write(v); err != nil {
		w.buf.Reset(w.wr)
		return err
	}
	return w.buf.Flush()
}

func (w *Writer) write(v models.Value) error {
	switch v.Type {
	case "string":
		return w.writeLine('+', v.Str)
	case "error":
		return w.writeLine('-', v.Str)
	case "integer":
		return w.writeLine(':', strconv.Itoa(v.Num))
	case "bulk":
		return w.writeBulk(v.Bulk)
	case "null":
		_, err := w.buf.WriteString("$-1\r\n")
		return err
	case "nullarray":
		_, err := w.buf.WriteString("*-1\r\n")
		return err
	case "array":
		return w.writeArray(v.Array)
	default:
		return fmt.Errorf("unknown type: %s", v.Type)
	}
}

func (w *Writer) writeLine(prefix byte, s string) error {
	if err := w.buf.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.buf.WriteString(s); err != nil {
		return err
	}
	_, err := w.buf.WriteString("\r\n")
	return err
}

func (w *Writer) writeBulk(s string) error {
	if err := w.writeLine('$', strconv.Itoa(len(s))); err != nil {
		return err
	}
	if _, err := w.buf.WriteString(s); err != nil {
		return err
	}
	_, err := w.buf.WriteString("\r\n")
	return err
}

func (w *Writer) writeArray(array []models.Value) error {
	if err := w.writeLine('*', strconv.Itoa(len(array))); err != nil {
		return err
	}
	for _, value := range array {
		if err := w.write(value); err != nil {
			return err
		}
	}
	return nil
}
