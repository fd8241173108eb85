// Command drccat is a line-oriented relay client.
//
// Each line read from stdin is sent as one message; relayed messages are
// printed as "tag: body".
//
//	drccat --addr 127.0.0.1:6969 --name alice
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"github.com/luciancaetano/drc/client"
	"github.com/luciancaetano/drc/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("drccat", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.StringP("addr", "a", "127.0.0.1:6969", "Relay address")
	name := fs.StringP("name", "n", "anonymous", "Sender tag")
	verbosity := fs.CountP("verbose", "v", "Increase log detail")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	log := logging.New(stderr, *verbosity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, *addr, *name)
	if err != nil {
		log.WithError(err).Error("Failed to connect")
		return 1
	}
	log.WithField("addr", *addr).Debug("Connected")

	var wg conc.WaitGroup
	wg.Go(func() {
		receive(conn, stdout, log)
		stop()
	})
	// stdin reads cannot be interrupted, so the sender is not waited on.
	go func() {
		send(conn, stdin, log)
		stop()
	}()

	<-ctx.Done()
	conn.Close()
	wg.Wait()
	return 0
}

func send(conn *client.Conn, in io.Reader, log *logrus.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := conn.Send(scanner.Text()); err != nil {
			log.WithError(err).Warn("Failed to send")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("Failed to read input")
	}
}

func receive(conn *client.Conn, out io.Writer, log *logrus.Logger) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("Receive stopped")
			}
			return
		}
		fmt.Fprintln(out, msg.String())
	}
}
