package testutil

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// Credentials of the user created by the in-memory IMAP backend
const (
	IMAPUser     = "username"
	IMAPPassword = "password"
)

// IMAPServer is an in-process IMAP server over the go-imap memory backend
type IMAPServer struct {
	Host string
	Port int
	addr string
}

// NewIMAPServer starts an IMAP server on a random local port with an empty
// INBOX, stopped with the test
func NewIMAPServer(t testing.TB) *IMAPServer {
	t.Helper()

	s := server.New(memory.New())
	s.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Close() })

	tcp := ln.Addr().(*net.TCPAddr)
	srv := &IMAPServer{Host: tcp.IP.String(), Port: tcp.Port, addr: ln.Addr().String()}
	srv.clearInbox(t)
	return srv
}

func (s *IMAPServer) connect(t testing.TB) *imapclient.Client {
	t.Helper()

	c, err := imapclient.Dial(s.addr)
	if err != nil {
		t.Fatalf("failed to connect to test IMAP server: %v", err)
	}
	if err := c.Login(IMAPUser, IMAPPassword); err != nil {
		_ = c.Logout()
		t.Fatalf("failed to login: %v", err)
	}
	return c
}

// clearInbox removes the greeting message the memory backend starts with
func (s *IMAPServer) clearInbox(t testing.TB) {
	t.Helper()

	c := s.connect(t)
	defer func() { _ = c.Logout() }()

	mbox, err := c.Select("INBOX", false)
	if err != nil {
		t.Fatalf("failed to select INBOX: %v", err)
	}
	if mbox.Messages == 0 {
		return
	}
	seq := new(imap.SeqSet)
	seq.AddRange(1, mbox.Messages)
	if err := c.Store(seq, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil); err != nil {
		t.Fatalf("failed to flag messages: %v", err)
	}
	if err := c.Expunge(nil); err != nil {
		t.Fatalf("failed to expunge: %v", err)
	}
}

// Append stores a raw message in INBOX with the given flags
func (s *IMAPServer) Append(t testing.TB, raw string, flags ...string) {
	t.Helper()

	c := s.connect(t)
	defer func() { _ = c.Logout() }()

	if err := c.Append("INBOX", flags, time.Now(), bytes.NewBufferString(raw)); err != nil {
		t.Fatalf("failed to append message: %v", err)
	}
}
