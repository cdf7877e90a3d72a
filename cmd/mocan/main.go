package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/roffe/mocan/cmd/mocan/cmd"
	log "github.com/sirupsen/logrus"

	// Init backends
	_ "github.com/roffe/mocan/backend/slcan"
	_ "github.com/roffe/mocan/backend/socketcan"
	_ "github.com/roffe/mocan/backend/virtual"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel() // Setup interupt handler for ctrl-c
	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt)
	go func() {
		s := <-quitChan
		log.Infof("got %v, exiting", s)
		cancel()
		// Failsafe if there is deadlocks
		<-time.After(45 * time.Second)
		log.Fatal("took to long to shutdown, forcefully exiting")
	}()
	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
