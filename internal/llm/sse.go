package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type FragmentKind int

const (
	FragmentContent FragmentKind = iota
	FragmentDone
	FragmentMalformed
)

// Fragment is one decoded event of an upstream completion stream.
type Fragment struct {
	Kind    FragmentKind
	Content string
	Err     *StreamProtocolError
}

const doneSentinel = "[DONE]"

// Decoder reads `data: {...}` server-sent-event lines of an OpenAI-compatible
// completion stream. It knows nothing about HTTP; any reader will do.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next content, terminator or malformed fragment. Payloads
// that carry no assistant text (role announcements, finish markers, usage
// blocks) are consumed silently. At end of input Next returns io.EOF.
func (d *Decoder) Next() (Fragment, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return Fragment{}, err
		}
		payload, ok := dataPayload(line)
		if !ok {
			continue
		}
		if payload == doneSentinel {
			return Fragment{Kind: FragmentDone}, nil
		}
		var chunk openai.ChatCompletionStreamResponse
		if uerr := json.Unmarshal([]byte(payload), &chunk); uerr != nil {
			return Fragment{Kind: FragmentMalformed, Err: &StreamProtocolError{Payload: payload, Err: uerr}}, nil
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return Fragment{Kind: FragmentContent, Content: chunk.Choices[0].Delta.Content}, nil
	}
}

// dataPayload extracts the value of a `data:` field. Comments, blank lines
// and other SSE fields (event, id, retry) are not payloads.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	return payload, payload != ""
}
