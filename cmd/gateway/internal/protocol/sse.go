package protocol

import "bytes"

var ssePing = []byte(": ping\n\n")

// SSE frames e as a text/event-stream chunk. Heartbeats become comment lines.
func (e Event) SSE() ([]byte, error) {
	if e.Kind == KindHeartbeat {
		return ssePing, nil
	}

	payload, err := e.Payload()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
