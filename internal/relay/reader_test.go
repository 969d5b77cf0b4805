package relay

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func readAll(lr *LineReader) []string {
	var lines []string
	for lr.Scan() {
		lines = append(lines, lr.Line())
	}
	return lines
}

func TestLineReader(t *testing.T) {
	lr := NewLineReader(strings.NewReader("#a one\r\n#b two\n\nlast"), 128)
	require.Equal(t, []string{"#a one", "#b two", "", "last"}, readAll(lr))
	require.NoError(t, lr.Err())
}

func TestLineReaderInvalidUTF8(t *testing.T) {
	lr := NewLineReader(strings.NewReader("#a ok\n#a \xff\xfe\n#a never\n"), 128)
	require.Equal(t, []string{"#a ok"}, readAll(lr))
	require.ErrorIs(t, lr.Err(), ErrInvalidUTF8)
	require.False(t, lr.Scan())
}

func TestLineReaderTooLong(t *testing.T) {
	lr := NewLineReader(strings.NewReader("short\n"+strings.Repeat("x", 200)+"\n"), 64)
	require.Equal(t, []string{"short"}, readAll(lr))
	require.ErrorIs(t, lr.Err(), ErrLineTooLong)
}

func TestLineReaderIOError(t *testing.T) {
	boom := errors.New("boom")
	lr := NewLineReader(iotest.ErrReader(boom), 64)
	require.Empty(t, readAll(lr))
	require.ErrorIs(t, lr.Err(), boom)
}

func TestLineReaderStripsOneCarriageReturn(t *testing.T) {
	lr := NewLineReader(strings.NewReader("#a crlf\r\n#a double\r\r\n"), 128)
	require.Equal(t, []string{"#a crlf", "#a double\r"}, readAll(lr))
	require.NoError(t, lr.Err())
}
