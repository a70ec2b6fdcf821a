package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"wabridge/pkg/whatsapp"
)

// Base64 image payloads get large; cap the request body well above them.
const maxBodySize = 32 << 20

const defaultImageMimeType = "image/jpeg"

type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type sendImageRequest struct {
	Number      string `json:"number"`
	Caption     string `json:"caption"`
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

type statusResponse struct {
	Connected bool                  `json:"connected"`
	Status    string                `json:"status"`
	Info      *whatsapp.SessionInfo `json:"info"`
}

type qrResponse struct {
	QR      *string `json:"qr"`
	Message string  `json:"message,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "WhatsApp HTTP bridge is running",
		"version":       s.version,
		"documentation": "GET /status, GET /qr, GET /events, POST /send-message, POST /send-image",
	})
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	info, ok := s.messenger.Session()
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{
			Connected: false,
			Status:    "Waiting for connection",
			Info:      nil,
		})
		return nil
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Connected: true,
		Status:    "Connected",
		Info:      &info,
	})
	return nil
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) error {
	status := s.messenger.Status()
	if status.State != whatsapp.StateQR || status.QRCode == "" {
		writeJSON(w, http.StatusOK, qrResponse{QR: nil, Message: "No pairing in progress"})
		return nil
	}

	code := status.QRCode
	writeJSON(w, http.StatusOK, qrResponse{QR: &code})
	return nil
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) error {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if req.Number == "" || req.Message == "" {
		return validationError("Number and message are required")
	}

	address := whatsapp.NormalizeAddress(req.Number)
	id, err := s.messenger.SendText(r.Context(), address, req.Message)
	if err != nil {
		return adapterError("Failed to send message", err)
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: "Message sent successfully",
		Data:    id,
	})
	return nil
}

func (s *Server) handleSendImage(w http.ResponseWriter, r *http.Request) error {
	var req sendImageRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	if req.Number == "" || req.ImageBase64 == "" {
		return validationError("Number and imageBase64 are required")
	}

	payload, err := decodeImagePayload(req.ImageBase64)
	if err != nil {
		return validationError("Invalid imageBase64 payload")
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = defaultImageMimeType
	}
	filename := "image." + extensionFromMime(mimeType)

	address := whatsapp.NormalizeAddress(req.Number)
	id, err := s.messenger.SendMedia(r.Context(), address, payload, mimeType, filename, req.Caption)
	if err != nil {
		return adapterError("Failed to send image", err)
	}

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: "Image sent successfully",
		Data:    id,
	})
	return nil
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return validationError("Unable to read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return validationError("Invalid JSON body")
	}
	return nil
}

// decodeImagePayload accepts either a bare base64 string or a data URL.
func decodeImagePayload(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.IndexByte(encoded, ','); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func extensionFromMime(mimeType string) string {
	parts := strings.SplitN(mimeType, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "bin"
	}
	ext := parts[1]
	if idx := strings.IndexByte(ext, ';'); idx >= 0 {
		ext = ext[:idx]
	}
	return strings.TrimSpace(ext)
}
