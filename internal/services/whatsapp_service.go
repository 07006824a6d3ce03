package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type WhatsAppConfig struct {
	APIURL   string
	DeviceID string
	Username string
	Password string
}

func WhatsAppConfigFromEnv() WhatsAppConfig {
	return WhatsAppConfig{
		APIURL:   os.Getenv("WHATSAPP_API_URL"),
		DeviceID: os.Getenv("WHATSAPP_DEVICE_ID"),
		Username: os.Getenv("WHATSAPP_API_USER"),
		Password: os.Getenv("WHATSAPP_API_PASSWORD"),
	}
}

// WhatsAppService sends verification codes through a WhatsApp HTTP gateway.
type WhatsAppService struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppService(cfg WhatsAppConfig) *WhatsAppService {
	return &WhatsAppService{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type whatsAppMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type whatsAppResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendCode delivers a verification code. phone is digits with the
// country code and no leading plus.
func (s *WhatsAppService) SendCode(ctx context.Context, phone, code string) error {
	msg := fmt.Sprintf("Your OutreachGuard verification code is %s. It expires in 10 minutes.", code)
	return s.SendMessage(ctx, phone, msg)
}

func (s *WhatsAppService) SendMessage(ctx context.Context, phone, message string) error {
	if s.cfg.APIURL == "" {
		return fmt.Errorf("WHATSAPP_API_URL not configured")
	}

	jid := phone
	if !strings.HasSuffix(jid, "@s.whatsapp.net") {
		jid += "@s.whatsapp.net"
	}

	body, err := json.Marshal(whatsAppMessageRequest{Phone: jid, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(s.cfg.APIURL, "/") + "/send/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if s.cfg.DeviceID != "" {
		req.Header.Set("X-Device-Id", s.cfg.DeviceID)
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp whatsAppResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("WhatsApp API error (status %d): %s", resp.StatusCode, errResp.Message)
	}
	return nil
}
