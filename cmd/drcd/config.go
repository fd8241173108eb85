package main

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/drc"
	"github.com/luciancaetano/drc/internal/protocol"
	"github.com/luciancaetano/drc/server"
)

// Version - drcd release fingerprint
var Version = "0.1.0"

type options struct {
	port         string
	bind         string
	verbosity    int
	readTimeout  time.Duration
	writeTimeout time.Duration
	enqueueWait  time.Duration
	queueSize    int
	maxFrame     int
	rate         float64
	burst        int
	httpAddr     string
	allOrigins   bool
	version      bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	defaults := server.DefaultConfig()
	opts := options{}

	fs := pflag.NewFlagSet("drcd", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Dithers Relay Chat server\n\n\tdrcd [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.port, "port", "p", strconv.Itoa(drc.DefaultPort), "TCP port to listen on")
	fs.StringVarP(&opts.bind, "bind", "b", "0.0.0.0", "Address to bind")
	fs.CountVarP(&opts.verbosity, "verbose", "v", "Increase log detail (-v debug, -vv trace)")
	fs.DurationVar(&opts.readTimeout, "read-timeout", 0, "Disconnect clients idle for this long (0 disables)")
	fs.DurationVar(&opts.writeTimeout, "write-timeout", defaults.WriteTimeout, "Bound on each outbound frame write")
	fs.DurationVar(&opts.enqueueWait, "enqueue-timeout", defaults.EnqueueTimeout, "How long a full outbound queue may stay full before the client is dropped")
	fs.IntVar(&opts.queueSize, "queue-size", defaults.QueueSize, "Outbound frames buffered per client")
	fs.IntVar(&opts.maxFrame, "max-frame", defaults.MaxFrameSize, "Largest accepted payload in bytes")
	fs.Float64Var(&opts.rate, "rate", 0, "Inbound frames per second allowed per client (0 disables)")
	fs.IntVar(&opts.burst, "burst", 0, "Inbound burst allowed per client (defaults to twice --rate)")
	fs.StringVar(&opts.httpAddr, "http-addr", "", "Serve /ws, /metrics and /healthz on this address")
	fs.BoolVar(&opts.allOrigins, "ws-any-origin", false, "Accept WebSocket upgrades from any origin")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// serverConfig turns flags into a server configuration. An unparseable port
// falls back to the default with a warning rather than failing startup.
func (o options) serverConfig(logger *logrus.Logger) server.Config {
	port, err := strconv.ParseUint(o.port, 10, 16)
	if err != nil {
		logger.Warnf("Failed to parse port: %v. Defaulting to %d", err, drc.DefaultPort)
		port = drc.DefaultPort
	}

	cfg := server.DefaultConfig()
	cfg.Addr = net.JoinHostPort(o.bind, strconv.FormatUint(port, 10))
	cfg.ReadTimeout = o.readTimeout
	cfg.WriteTimeout = o.writeTimeout
	cfg.EnqueueTimeout = o.enqueueWait
	cfg.QueueSize = o.queueSize
	cfg.MaxFrameSize = min(o.maxFrame, protocol.MaxPayloadSize)
	cfg.Logger = logger
	cfg.HTTPAddr = o.httpAddr

	if o.rate > 0 {
		burst := o.burst
		if burst <= 0 {
			burst = max(1, int(2*o.rate))
		}
		cfg.RateLimitConfig = &server.RateLimitConfig{
			MessagesPerSecond: rate.Limit(o.rate),
			Burst:             burst,
			Enabled:           true,
		}
	} else if o.burst > 0 {
		logger.Warnf("Ignoring --burst %d without --rate. Rate limiting stays disabled", o.burst)
	}
	if o.allOrigins {
		cfg.CheckOrigin = server.AllOrigins()
	}
	return cfg
}
