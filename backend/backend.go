// Package backend connects the message-object pool to a real or virtual CAN
// bus. Each backend registers itself from init and is created by name.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roffe/mocan/pkg/frame"
	log "github.com/sirupsen/logrus"
)

// Backend is a frame transport.
type Backend interface {
	Name() string
	Open(context.Context) error
	Close() error
	Send() chan<- frame.Frame
	Recv() <-chan frame.Frame
	Err() <-chan error
	Event() <-chan Event
}

type Info struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*Config) (Backend, error)
}

func (a *Info) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", a.Name, a.Description, a.RequiresSerialPort)
}

type Config struct {
	Debug        bool
	Port         string
	PortBaudrate int
	// Bitrate in kbit/s.
	Bitrate   uint
	OnMessage func(string)
}

var backends = make(map[string]*Info)

func New(name string, cfg *Config) (Backend, error) {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			log.WithField("backend", name).Info(msg)
		}
	}
	if b, found := backends[strings.ToLower(name)]; found {
		return b.New(cfg)
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}

func Register(b *Info) error {
	key := strings.ToLower(b.Name)
	if _, found := backends[key]; !found {
		backends[key] = b
		return nil
	}
	return fmt.Errorf("backend %s already registered", b.Name)
}

func ListNames() []string {
	var out []string
	for _, b := range backends {
		out = append(out, b.Name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func List() []Info {
	var out []Info
	for _, b := range backends {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}
