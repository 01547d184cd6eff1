// Package mailsink implements a minimal SMTP sink: it speaks just enough of
// the protocol to accept mail and record it, for local pipeline testing.
package mailsink

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
)

// Message is one accepted mail transaction.
type Message struct {
	From string
	To   []string
	Data string
}

// Server accepts SMTP connections and stores every delivered message.
type Server struct {
	// Reject, when set, causes RCPT TO for matching addresses to be
	// refused with a 550, without aborting the rest of the transaction.
	Reject func(rcpt string) bool

	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	msgs []Message
}

// Start begins listening on addr (use "127.0.0.1:0" for an ephemeral port).
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mailsink listen: %w", err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the listen address
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the listener and waits for in-flight sessions
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// Messages returns a copy of every accepted message so far
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		_, _ = w.WriteString(line + "\r\n")
		_ = w.Flush()
	}

	reply("220 mailsink ready")

	var msg Message
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(verb, "EHLO"):
			_, _ = w.WriteString("250-mailsink\r\n")
			reply("250 AUTH PLAIN LOGIN")
		case strings.HasPrefix(verb, "HELO"):
			reply("250 mailsink")
		case strings.HasPrefix(verb, "AUTH"):
			reply("235 ok")
		case strings.HasPrefix(verb, "MAIL FROM:"):
			msg = Message{From: stripAngle(line[len("MAIL FROM:"):])}
			reply("250 ok")
		case strings.HasPrefix(verb, "RCPT TO:"):
			rcpt := stripAngle(line[len("RCPT TO:"):])
			if s.Reject != nil && s.Reject(rcpt) {
				reply("550 mailbox unavailable")
				continue
			}
			msg.To = append(msg.To, rcpt)
			reply("250 ok")
		case verb == "DATA":
			reply("354 end with <CRLF>.<CRLF>")
			data, err := readData(r)
			if err != nil {
				return
			}
			msg.Data = data
			s.mu.Lock()
			s.msgs = append(s.msgs, msg)
			s.mu.Unlock()
			msg = Message{}
			reply("250 accepted")
		case verb == "RSET" || verb == "NOOP":
			msg = Message{}
			reply("250 ok")
		case verb == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 command not implemented")
		}
	}
}

func readData(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.TrimRight(line, "\r\n") == "." {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

func stripAngle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	return strings.TrimSuffix(s, ">")
}
