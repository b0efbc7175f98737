// Package diag renders updater status lines for a plain byte-sink
// transport such as the debug UART.
package diag

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// LineFormatter writes one human-readable line per entry. Numeric fields
// are printed as 32-bit hex, the way the device prints addresses.
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	if e.Level <= logrus.ErrorLevel {
		b.WriteString("error: ")
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, Value(e.Data[k]))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Value formats a field value for the sink.
func Value(v interface{}) string {
	switch x := v.(type) {
	case uint32:
		return Hex(x)
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

// Hex formats x as 0x followed by eight upper-case digits.
func Hex(x uint32) string {
	return fmt.Sprintf("0x%08X", x)
}

// New returns a logger that writes status lines to w. A nil w discards.
func New(w io.Writer) *logrus.Logger {
	if w == nil {
		w = io.Discard
	}
	return &logrus.Logger{
		Out:       w,
		Formatter: LineFormatter{},
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}
}
