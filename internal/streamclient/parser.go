package streamclient

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 1 << 20

// rawEvent is one dispatched text/event-stream message.
type rawEvent struct {
	Event string
	Data  string
}

// parseStream reads text/event-stream framing from r and calls emit for
// every complete message. Comment lines (heartbeats) are skipped. It
// returns the read error, or nil at EOF.
func parseStream(r io.Reader, emit func(rawEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var event string
	var data []string

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if line == "" {
			if len(data) > 0 {
				emit(rawEvent{Event: event, Data: strings.Join(data, "\n")})
			}
			event, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
		// id and retry are not used by this service.
	}
	return scanner.Err()
}
