package backend

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

type EventType int

func (et EventType) String() string {
	switch et {
	case EventTypeError:
		return "ERROR"
	case EventTypeWarning:
		return "WARN"
	case EventTypeInfo:
		return "INFO"
	case EventTypeDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Level maps the event type to a logrus level.
func (et EventType) Level() log.Level {
	switch et {
	case EventTypeError:
		return log.ErrorLevel
	case EventTypeWarning:
		return log.WarnLevel
	case EventTypeInfo:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}

const (
	EventTypeError EventType = iota
	EventTypeWarning
	EventTypeInfo
	EventTypeDebug
)

type Event struct {
	Type    EventType
	Details string
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Details)
}
