package mocan

import (
	"github.com/roffe/mocan/pkg/isrlog"
	log "github.com/sirupsen/logrus"
)

type Opt func(m *Module) error

// WithLogger replaces the default logrus entry.
func WithLogger(l log.FieldLogger) Opt {
	return func(m *Module) error {
		if l != nil {
			m.log = l
		}
		return nil
	}
}

// WithNodeID derives object identifiers for node right away.
func WithNodeID(node uint8) Opt {
	return func(m *Module) error {
		return m.SetNodeID(node)
	}
}

// WithDiagnostics shares an existing ring, e.g. with the backend.
func WithDiagnostics(r *isrlog.Ring) Opt {
	return func(m *Module) error {
		if r != nil {
			m.diag = r
		}
		return nil
	}
}
