package sensor

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// OpenReplay opens a recorded sample log for playback. The returned source
// ends with io.EOF.
func OpenReplay(id, path string) (*LineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open replay %s: %w", path, err)
	}
	log.Infoln("replaying samples from", path)
	return NewLineSource(id, f), nil
}
