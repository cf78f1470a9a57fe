package workflow

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/relloyd/starpipe/logger"
)

// CleanupHandlerDefault calls cancelFunc on CTRL-C or SIGTERM so running statements are aborted.
// Call the returned func to stop listening for signals.
func CleanupHandlerDefault(log logger.Logger, cancelFunc context.CancelFunc) (stop func()) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case x := <-c: // wait for interrupt.
			if isatty.IsTerminal(os.Stdout.Fd()) { // if the terminal is interactive...
				fmt.Println() // add new line char for clean CLI look n feel.
			}
			log.Info("Caught ", x.String())
			log.Info("Shutting down workflow...")
			cancelFunc()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(c)
		close(done)
	}
}
