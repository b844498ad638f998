package chat

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	bytes.Buffer
	flushes  int
	failFrom int // fail writes once this many bytes were written, 0 disables
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.failFrom > 0 && w.Len() >= w.failFrom {
		return 0, errors.New("client gone")
	}
	return w.Buffer.Write(p)
}

func (w *recordingWriter) Flush() error {
	w.flushes++
	return nil
}

func tokenEvent(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", content)
}

func TestRelayTeesTokens(t *testing.T) {
	events := tokenEvent("Bon") + tokenEvent("jour") + tokenEvent(" !")
	src := strings.NewReader(events + "data: [DONE]\n\n")
	dst := &recordingWriter{}

	text, err := Relay(src, dst)
	require.NoError(t, err)

	assert.Equal(t, "Bonjour !", text)
	assert.Equal(t, events, dst.String(), "client gets provider bytes unchanged, minus the done marker")
	assert.Positive(t, dst.flushes)
}

func TestRelaySkipsNonDeltaLines(t *testing.T) {
	input := ": keep-alive\n\n" +
		"data: not json\n\n" +
		`data: {"choices":[]}` + "\n\n" +
		"event: ping\n" +
		tokenEvent("ok") +
		"data: [DONE]\n\n"
	dst := &recordingWriter{}

	text, err := Relay(strings.NewReader(input), dst)
	require.NoError(t, err)

	assert.Equal(t, "ok", text)
	assert.NotContains(t, dst.String(), "[DONE]")
	assert.Contains(t, dst.String(), ": keep-alive\n")
}

func TestRelayHandlesCRLF(t *testing.T) {
	input := strings.ReplaceAll(tokenEvent("a")+tokenEvent("b"), "\n", "\r\n") + "data: [DONE]\r\n\r\n"
	dst := &recordingWriter{}

	text, err := Relay(strings.NewReader(input), dst)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestRelayEOFWithoutDone(t *testing.T) {
	dst := &recordingWriter{}

	text, err := Relay(strings.NewReader(tokenEvent("fin")), dst)
	require.NoError(t, err)
	assert.Equal(t, "fin", text)
}

func TestRelayEmptyStream(t *testing.T) {
	dst := &recordingWriter{}

	text, err := Relay(strings.NewReader("data: [DONE]\n\n"), dst)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, dst.Len())
}

type brokenReader struct {
	r io.Reader
}

func (b *brokenReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, errors.New("connection reset")
	}
	return n, err
}

func TestRelayReadError(t *testing.T) {
	dst := &recordingWriter{}

	text, err := Relay(&brokenReader{r: strings.NewReader(tokenEvent("par"))}, dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read provider stream")
	assert.Equal(t, "par", text)
}

func TestRelayClientWriteError(t *testing.T) {
	dst := &recordingWriter{failFrom: 1}

	_, err := Relay(strings.NewReader(tokenEvent("a")+tokenEvent("b")), dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write to client")
}
