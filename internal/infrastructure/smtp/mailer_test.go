package smtp

import (
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youme-api/internal/config"
)

func TestSendEmail_BuildsMessage(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "mail.local", SMTPPort: "1025", SMTPFrom: "noreply@youme.app"}).(*mailer)
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	var gotAddr string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		assert.Nil(t, a)
		assert.Equal(t, []string{"ann@example.com"}, to)
		return nil
	}

	require.NoError(t, m.SendEmail("ann@example.com", "You're linked", "Bo linked with you."))
	assert.Equal(t, "mail.local:1025", gotAddr)
	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: noreply@youme.app\r\nTo: ann@example.com\r\nSubject: You're linked\r\n"))
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nBo linked with you."))
}

func TestSendEmail_RejectsHeaderInjection(t *testing.T) {
	m := NewMailer(&config.Config{}).(*mailer)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	assert.Error(t, m.SendEmail("ann@example.com\r\nBcc: x@y.z", "hi", "body"))
}
