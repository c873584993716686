// Package servers wires configured processes out of the internal
// packages.
package servers

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnishMulay/ravenfs/internal/server"
)

type Runnable interface {
	Run() error
}

// Process runs a server until SIGINT or SIGTERM, then stops it and
// releases everything in closers in reverse order.
type Process struct {
	Server  server.Server
	Closers []func() error
}

func (p *Process) Run() error {
	if err := p.Server.Start(); err != nil {
		return errors.Join(err, p.close())
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	signal.Stop(c)

	errServer := p.Server.Stop()
	return errors.Join(errServer, p.close())
}

// Abort releases whatever was opened so far while building and returns
// err.
func (p *Process) Abort(err error) error {
	if cerr := p.close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func (p *Process) close() error {
	var errs []error
	for i := len(p.Closers) - 1; i >= 0; i-- {
		if err := p.Closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
