package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmail_SendVerificationRequired(t *testing.T) {
	svc := NewEmailService(SMTPConfig{
		Host: "smtp.example.com", Port: "587", Username: "u", Password: "p",
		From: "guard@example.com", FromName: "Guard",
	})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, svc.SendVerificationRequired("alice@example.com"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [OutreachGuard] Verify your phone number")
	assert.Contains(t, gotMsg, "Verification required")
}

func TestEmail_UnconfiguredFails(t *testing.T) {
	svc := NewEmailService(SMTPConfig{})
	assert.False(t, svc.Configured())
	assert.Error(t, svc.SendEmail([]string{"a@example.com"}, "s", "b"))
}

func TestWhatsApp_SendCode(t *testing.T) {
	var got whatsAppMessageRequest
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send/message", r.URL.Path)
		assert.Equal(t, "dev-1", r.Header.Get("X-Device-Id"))
		user, pass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewWhatsAppService(WhatsAppConfig{APIURL: srv.URL + "/", DeviceID: "dev-1", Username: "u", Password: "p"})
	require.NoError(t, svc.SendCode(context.Background(), "6281234567890", "123456"))

	assert.Equal(t, "6281234567890@s.whatsapp.net", got.Phone)
	assert.Contains(t, got.Message, "123456")
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}

func TestWhatsApp_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(whatsAppResponse{Message: "device offline"})
	}))
	defer srv.Close()

	svc := NewWhatsAppService(WhatsAppConfig{APIURL: srv.URL})
	err := svc.SendCode(context.Background(), "6281234567890", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device offline")

	assert.Error(t, NewWhatsAppService(WhatsAppConfig{}).SendCode(context.Background(), "1", "2"))
}
