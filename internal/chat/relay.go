package chat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// StreamWriter is the client end of a relayed stream.
type StreamWriter interface {
	io.Writer
	Flush() error
}

var (
	doneEvent        = []byte("data: [DONE]\n\n")
	interruptedEvent = []byte("data: {\"error\":\"stream interrupted\"}\n\n")
	dataPrefix       = []byte("data:")
)

// Relay copies a provider event stream to dst line by line, flushing as it
// goes, and returns the concatenated delta text seen on the way. Lines are
// forwarded unchanged. The [DONE] line ends the relay without being written;
// the caller sends it once the reply is stored. A provider EOF without [DONE]
// also counts as a normal end.
func Relay(src io.Reader, dst StreamWriter) (string, error) {
	r := bufio.NewReader(src)
	var text strings.Builder

	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if isDone(line) {
				return text.String(), nil
			}
			if _, werr := dst.Write(line); werr != nil {
				return text.String(), errors.Wrap(werr, "write to client")
			}
			if ferr := dst.Flush(); ferr != nil {
				return text.String(), errors.Wrap(ferr, "flush to client")
			}
			text.WriteString(deltaContent(line))
		}
		if err == io.EOF {
			return text.String(), nil
		}
		if err != nil {
			return text.String(), errors.Wrap(err, "read provider stream")
		}
	}
}

func dataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	return bytes.TrimSpace(line[len(dataPrefix):]), true
}

func isDone(line []byte) bool {
	payload, ok := dataPayload(line)
	return ok && string(payload) == "[DONE]"
}

// deltaContent returns the text carried by one data line, or "" for
// comments, keep-alives and anything not shaped like a completion chunk.
func deltaContent(line []byte) string {
	payload, ok := dataPayload(line)
	if !ok || len(payload) == 0 {
		return ""
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
