package llm

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

const maxStreamLine = 1 << 20

// ReadStream consumes an OpenAI-compatible server-sent event stream and
// returns the concatenated delta content. Malformed chunks are skipped.
func ReadStream(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	var sb strings.Builder
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" || !gjson.Valid(data) {
			continue
		}
		chunk := gjson.Parse(data)
		if delta := chunk.Get("choices.0.delta.content"); delta.Exists() {
			sb.WriteString(delta.String())
			continue
		}
		// Some proxies answer a streaming request with whole messages.
		if msg := chunk.Get("choices.0.message.content"); msg.Exists() {
			sb.WriteString(msg.String())
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", Timeout(err))
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
