// internal/sink/forwarder.go
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rfid-service/internal/config"
	"rfid-service/internal/model"
)

// forwardPayload is the wire shape the remote tag endpoint expects.
type forwardPayload struct {
	RFIDTag   string          `json:"rfid_tag"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	UserInfo  forwardUserInfo `json:"user_info"`
}

type forwardUserInfo struct {
	RSSI int    `json:"rssi"`
	PC   string `json:"pc"`
	CRC  string `json:"crc"`
}

// Forwarder posts each tag to a remote HTTP endpoint. Failures are
// reported to the caller; they never terminate a session.
type Forwarder struct {
	client   *http.Client
	url      string
	deviceID string
	logger   *zap.Logger
}

// NewForwarder creates a tag forwarder for the configured endpoint.
func NewForwarder(cfg *config.ForwarderConfig, deviceID string, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		client:   &http.Client{Timeout: cfg.Timeout},
		url:      cfg.BaseURL + cfg.Endpoint,
		deviceID: deviceID,
		logger:   logger.With(zap.String("sink", "forwarder")),
	}
}

// Emit posts the tag as JSON.
func (f *Forwarder) Emit(ctx context.Context, tag *model.TagRecord) error {
	payload := forwardPayload{
		RFIDTag:   tag.EPC,
		Timestamp: tag.Timestamp,
		DeviceID:  f.deviceID,
		UserInfo: forwardUserInfo{
			RSSI: tag.RSSI,
			PC:   tag.PC,
			CRC:  tag.CRC,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal forward payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward tag %s: %w", tag.EPC, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("forward tag %s: endpoint returned %d", tag.EPC, resp.StatusCode)
	}

	f.logger.Debug("Tag forwarded", zap.String("epc", tag.EPC))
	return nil
}

// Close is a no-op; the HTTP client owns no persistent resources here.
func (f *Forwarder) Close() error {
	return nil
}
