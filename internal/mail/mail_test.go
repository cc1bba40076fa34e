package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPSenderValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SMTPConfig
		wantErr bool
	}{
		{"valid", SMTPConfig{Host: "smtp.example.com", From: "me@example.com"}, false},
		{"missing host", SMTPConfig{From: "me@example.com"}, true},
		{"missing from", SMTPConfig{Host: "smtp.example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTPSender(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSMTPSender() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSMTPSenderSend(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "user", Password: "pw", From: "me@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err = s.Send(context.Background(), Message{To: "parent@example.com", Subject: "Invoice\nINV-1", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth == nil {
		t.Error("expected PLAIN auth when username is set")
	}
	if gotFrom != "me@example.com" || len(gotTo) != 1 || gotTo[0] != "parent@example.com" {
		t.Errorf("from=%q to=%v", gotFrom, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"Subject: Invoice INV-1\r\n", "To: parent@example.com\r\n", "\r\n\r\nline1\r\nline2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, From: "me@example.com"})
	relayErr := errors.New("451 try later")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return relayErr }

	if err := s.Send(context.Background(), Message{}); err == nil {
		t.Error("expected error for missing recipient")
	}
	if err := s.Send(context.Background(), Message{To: "p@example.com"}); !errors.Is(err, relayErr) {
		t.Errorf("Send() error = %v, want wrapped relay error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "p@example.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() with cancelled ctx = %v", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	if err := r.Send(context.Background(), Message{To: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if len(r.Sent()) != 1 {
		t.Errorf("Sent() = %v", r.Sent())
	}
	r.Err = errors.New("down")
	if err := r.Send(context.Background(), Message{To: "b@example.com"}); err == nil {
		t.Error("expected configured error")
	}
}
