package testutil

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Credentials accepted by the test SMTP server
const (
	SMTPUser     = "owner@acme.test"
	SMTPPassword = "secret"
)

// Delivery is one message accepted by the test SMTP server
type Delivery struct {
	From string
	To   []string
	Data []byte
}

// SMTPServer is an in-process SMTP server requiring PLAIN authentication
type SMTPServer struct {
	Host string
	Port int

	mu         sync.Mutex
	deliveries []Delivery
	rejectData bool
	auths      int
}

// NewSMTPServer starts an SMTP server on a random local port, stopped with the test
func NewSMTPServer(t testing.TB) *SMTPServer {
	t.Helper()

	srv := &SMTPServer{}
	s := smtp.NewServer(srv)
	s.Domain = "localhost"
	s.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	srv.Host, srv.Port = addr.IP.String(), addr.Port

	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Close() })
	return srv
}

// RejectData makes the server refuse message content with a transient error
func (s *SMTPServer) RejectData(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectData = reject
}

// Deliveries returns the accepted messages
func (s *SMTPServer) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Auths is the number of successful authentications
func (s *SMTPServer) Auths() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auths
}

// NewSession implements smtp.Backend
func (s *SMTPServer) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &smtpSession{server: s}, nil
}

type smtpSession struct {
	server *SMTPServer
	authed bool
	from   string
	to     []string
}

func (s *smtpSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *smtpSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != SMTPUser || password != SMTPPassword {
			return errors.New("invalid credentials")
		}
		s.authed = true
		s.server.mu.Lock()
		s.server.auths++
		s.server.mu.Unlock()
		return nil
	}), nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	if s.server.rejectData {
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "try again later"}
	}
	s.server.deliveries = append(s.server.deliveries, Delivery{From: s.from, To: s.to, Data: data})
	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error {
	return nil
}
