package radio

import (
	"github.com/kilianp07/regiondispatch/core/logger"
)

// LogSpeaker writes advisories to the log in place of audio playback.
type LogSpeaker struct {
	Log logger.Logger
}

func (s LogSpeaker) Play(m Message) error {
	logger.OrNop(s.Log).Infof("[scanner %s] %s", m.Level, m.Text)
	return nil
}
