// Command reactord is a minimal demo server wiring reactor.Pool,
// server.Listener and a trivial echo handler together, in the style of
// the example pack's small cmd/ entry points: flag parsing, a logrus
// formatter with TTY color detection, then a blocking Run call.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/badu/reactor/internal/supervise"
	"github.com/badu/reactor/message"
	"github.com/badu/reactor/reactor"
	"github.com/badu/reactor/server"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "listen address host:port")
	shards := flag.Int("shards", 1, "number of reactor shards (SO_REUSEPORT)")
	headerLimit := flag.Int("header-limit", 16*1024, "max request header bytes")
	bodyLimit := flag.Int64("body-limit", 2*1024*1024, "max request body bytes")
	keepAliveMax := flag.Int("keep-alive-max", 100, "max requests per kept-alive connection (0 disables keep-alive)")
	flag.Parse()

	log := newLogger()

	ip, port, err := parseAddr(*addr)
	if err != nil {
		log.WithError(err).Fatal("invalid -addr")
	}

	pool, err := reactor.NewPool(*shards, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create reactor pool")
	}

	cfg := server.New(
		server.WithHeaderLimit(*headerLimit),
		server.WithBodyLimit(*bodyLimit),
		server.WithKeepAliveMax(*keepAliveMax),
	)

	var listeners []*server.Listener
	for i, shard := range pool.Shards() {
		shardLog := log.WithField("shard", i)
		l, err := server.Listen(unix.SockaddrInet4{Port: port, Addr: ip}, shard, cfg, echoHandler, shardLog)
		if err != nil {
			log.WithError(err).Fatal("failed to bind listener")
		}
		if err := l.Start(); err != nil {
			log.WithError(err).Fatal("failed to register listener")
		}
		listeners = append(listeners, l)
	}

	if _, err := supervise.NewChildReaper(pool.Shards()[0], log, func(pid int, status unix.WaitStatus) {
		log.WithField("pid", pid).WithField("status", status.ExitStatus()).Info("reaped child")
	}); err != nil {
		log.WithError(err).Warn("child reaper unavailable")
	}

	log.WithField("addr", *addr).WithField("shards", *shards).Info("reactord listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := pool.Run(ctx); err != nil {
		log.WithError(err).Fatal("pool exited with error")
	}
	for _, l := range listeners {
		_ = l.Close()
	}
}

func echoHandler(req *message.Request) (int, []byte) {
	body := append([]byte("you requested "+req.Method+" "+req.URL.RawPath()+"\n"), req.Body...)
	return 200, body
}

func parseAddr(addr string) (ip [4]byte, port int, err error) {
	host, portStr, err := splitHostPort(addr)
	if err != nil {
		return ip, 0, err
	}
	parsedIP, err := parseIPv4(host)
	if err != nil {
		return ip, 0, err
	}
	port, err = atoiPort(portStr)
	return parsedIP, port, err
}

func newLogger() *logrus.Entry {
	logger := logrus.New()
	if isatty.IsTerminal(os.Stdout.Fd()) {
		logger.SetOutput(colorable.NewColorableStdout())
		logger.SetFormatter(&logrus.TextFormatter{ForceColors: true, FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(logger)
}
