// smtp-sink runs a local SMTP endpoint that accepts every message and logs
// it, for exercising the notifier without a real mail provider. Optionally a
// comma-separated REJECT_RCPTS list makes it bounce chosen recipients so
// per-recipient failure handling can be observed.
package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/scrumdeck/taskmail/internal/mailsink"
)

func main() {
	addr := os.Getenv("SMTP_SINK_ADDR")
	if addr == "" {
		addr = ":2525"
	}

	srv := &mailsink.Server{}
	if v := os.Getenv("REJECT_RCPTS"); v != "" {
		rejected := map[string]bool{}
		for _, r := range strings.Split(v, ",") {
			rejected[strings.TrimSpace(strings.ToLower(r))] = true
		}
		srv.Reject = func(rcpt string) bool {
			return rejected[strings.ToLower(rcpt)]
		}
	}

	if err := srv.Start(addr); err != nil {
		log.Fatalf("smtp-sink listen failed: %v", err)
	}
	log.Printf("smtp-sink listening on %s", srv.Addr())

	go func() {
		seen := 0
		for range time.Tick(time.Second) {
			msgs := srv.Messages()
			for _, m := range msgs[seen:] {
				log.Printf("smtp-sink received from=%s to=%v bytes=%d", m.From, m.To, len(m.Data))
			}
			seen = len(msgs)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	_ = srv.Close()
	log.Print("smtp-sink stopped")
}
