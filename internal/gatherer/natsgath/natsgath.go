package natsgath

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/exerciser/internal/gatherer/stream"
)

// New creates a gatherer that streams progress messages to the given inbox subject.
func New(nc *nats.Conn, evalUuid string, inbox string, logger *slog.Logger) *stream.Gatherer {
	log := logger.With(slog.String("component", "natsgath"), slog.String("inbox", inbox))
	return stream.New(evalUuid, func(msg any) {
		b, err := json.Marshal(msg)
		if err != nil {
			log.Error("failed to marshal message", slog.Any("error", err))
			return
		}
		if err := nc.Publish(inbox, b); err != nil {
			log.Warn("failed to publish message", slog.Any("error", err))
		}
	})
}
