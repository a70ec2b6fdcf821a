package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"wabridge/pkg/config"
	"wabridge/pkg/whatsapp"
)

type fakeMessenger struct {
	mu        sync.Mutex
	sendCalls int64

	lastAddress  string
	lastBody     string
	lastPayload  []byte
	lastMimeType string
	lastFilename string
	lastCaption  string

	sendErr error
	sendID  string

	session    whatsapp.SessionInfo
	hasSession bool
	status     whatsapp.StatusUpdate
	updates    chan whatsapp.StatusUpdate
}

func (f *fakeMessenger) SendText(ctx context.Context, address, body string) (string, error) {
	atomic.AddInt64(&f.sendCalls, 1)
	f.mu.Lock()
	f.lastAddress = address
	f.lastBody = body
	f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendID, nil
}

func (f *fakeMessenger) SendMedia(ctx context.Context, address string, payload []byte, mimeType, filename, caption string) (string, error) {
	atomic.AddInt64(&f.sendCalls, 1)
	f.mu.Lock()
	f.lastAddress = address
	f.lastPayload = payload
	f.lastMimeType = mimeType
	f.lastFilename = filename
	f.lastCaption = caption
	f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.sendID, nil
}

func (f *fakeMessenger) Session() (whatsapp.SessionInfo, bool) {
	return f.session, f.hasSession
}

func (f *fakeMessenger) Status() whatsapp.StatusUpdate {
	return f.status
}

func (f *fakeMessenger) Subscribe() (<-chan whatsapp.StatusUpdate, func()) {
	if f.updates == nil {
		f.updates = make(chan whatsapp.StatusUpdate, 8)
	}
	return f.updates, func() {}
}

func (f *fakeMessenger) calls() int64 {
	return atomic.LoadInt64(&f.sendCalls)
}

type recordedSend struct {
	address  string
	body     string
	payload  []byte
	mimeType string
	filename string
	caption  string
}

func (f *fakeMessenger) recorded() recordedSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recordedSend{
		address:  f.lastAddress,
		body:     f.lastBody,
		payload:  f.lastPayload,
		mimeType: f.lastMimeType,
		filename: f.lastFilename,
		caption:  f.lastCaption,
	}
}

func newTestServer(fake *fakeMessenger) *httptest.Server {
	cfg := config.DefaultConfig()
	return httptest.NewServer(NewServer(cfg, fake, "test").Handler())
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestSendMessageSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "3EB0ABC123"}
	ts := newTestServer(fake)
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/send-message", `{"number":"081234567890","message":"hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Fatalf("expected success true, got %v", body["success"])
	}
	if body["message"] != "Message sent successfully" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if body["data"] != "3EB0ABC123" {
		t.Fatalf("expected message id in data, got %v", body["data"])
	}
	rec := fake.recorded()
	if rec.address != "81234567890@c.us" {
		t.Fatalf("expected normalized address, got %q", rec.address)
	}
	if rec.body != "hi" {
		t.Fatalf("expected body forwarded, got %q", rec.body)
	}
}

func TestSendMessageMissingFieldsNeverInvokesAdapter(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "id"}
	ts := newTestServer(fake)
	defer ts.Close()

	for _, payload := range []string{
		`{"message":"hi"}`,
		`{"number":"08123"}`,
		`{}`,
	} {
		resp, body := postJSON(t, ts.URL+"/send-message", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, resp.StatusCode)
		}
		if body["success"] != false {
			t.Fatalf("payload %s: expected success false", payload)
		}
	}

	if fake.calls() != 0 {
		t.Fatalf("expected adapter untouched, got %d calls", fake.calls())
	}
}

func TestSendMessageAdapterFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendErr: errors.New("Evaluation failed")}
	ts := newTestServer(fake)
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/send-message", `{"number":"08123","message":"hi"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Fatalf("expected success false")
	}
	if body["message"] != "Failed to send message" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
	if body["error"] != "Evaluation failed" {
		t.Fatalf("unexpected error text: %v", body["error"])
	}
}

func TestSendImageDefaultsMimeType(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "img-1"}
	ts := newTestServer(fake)
	defer ts.Close()

	payload := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	resp, body := postJSON(t, ts.URL+"/send-image",
		`{"number":"08123","caption":"look","imageBase64":"`+payload+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["success"] != true {
		t.Fatalf("expected success true")
	}
	rec := fake.recorded()
	if rec.mimeType != "image/jpeg" {
		t.Fatalf("expected default mime type image/jpeg, got %q", rec.mimeType)
	}
	if rec.filename != "image.jpeg" {
		t.Fatalf("expected derived filename, got %q", rec.filename)
	}
	if rec.caption != "look" {
		t.Fatalf("expected caption forwarded, got %q", rec.caption)
	}
	if string(rec.payload) != "fake-image-bytes" {
		t.Fatalf("expected decoded payload forwarded")
	}
}

func TestSendImageMissingFieldsNeverInvokesAdapter(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "id"}
	ts := newTestServer(fake)
	defer ts.Close()

	for _, payload := range []string{
		`{"imageBase64":"aGk="}`,
		`{"number":"08123"}`,
	} {
		resp, _ := postJSON(t, ts.URL+"/send-image", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("payload %s: expected 400, got %d", payload, resp.StatusCode)
		}
	}

	if fake.calls() != 0 {
		t.Fatalf("expected adapter untouched, got %d calls", fake.calls())
	}
}

func TestSendImageRejectsInvalidBase64(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "id"}
	ts := newTestServer(fake)
	defer ts.Close()

	resp, _ := postJSON(t, ts.URL+"/send-image", `{"number":"08123","imageBase64":"%%%not-base64%%%"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if fake.calls() != 0 {
		t.Fatalf("expected adapter untouched")
	}
}

func TestSendImageAcceptsDataURL(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "img-2"}
	ts := newTestServer(fake)
	defer ts.Close()

	encoded := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	resp, _ := postJSON(t, ts.URL+"/send-image",
		`{"number":"08123","imageBase64":"data:image/png;base64,`+encoded+`","mimeType":"image/png"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	rec := fake.recorded()
	if string(rec.payload) != "png-bytes" {
		t.Fatalf("expected data URL prefix stripped")
	}
	if rec.filename != "image.png" {
		t.Fatalf("expected filename image.png, got %q", rec.filename)
	}
}

func TestStatusDisconnectedShape(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{}
	ts := newTestServer(fake)
	defer ts.Close()

	resp, body := getJSON(t, ts.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["connected"] != false {
		t.Fatalf("expected connected false, got %v", body["connected"])
	}
	if body["status"] != "Waiting for connection" {
		t.Fatalf("expected waiting status, got %v", body["status"])
	}
	if info, present := body["info"]; !present || info != nil {
		t.Fatalf("expected explicit null info, got %v (present=%v)", info, present)
	}
}

func TestStatusConnected(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{
		hasSession: true,
		session: whatsapp.SessionInfo{
			ID:          "6281234567890",
			Platform:    "smba",
			DisplayName: "Bridge Account",
		},
	}
	ts := newTestServer(fake)
	defer ts.Close()

	_, body := getJSON(t, ts.URL+"/status")
	if body["connected"] != true {
		t.Fatalf("expected connected true")
	}
	info, ok := body["info"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected info object, got %v", body["info"])
	}
	if info["id"] != "6281234567890" || info["platform"] != "smba" || info["displayName"] != "Bridge Account" {
		t.Fatalf("unexpected info snapshot: %v", info)
	}
}

func TestRootLiveness(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeMessenger{})
	defer ts.Close()

	resp, body := getJSON(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["version"] != "test" {
		t.Fatalf("expected version in payload, got %v", body["version"])
	}
	if body["status"] == "" || body["documentation"] == "" {
		t.Fatalf("expected status and documentation fields, got %v", body)
	}
}

func TestQRWithoutPairing(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeMessenger{status: whatsapp.StatusUpdate{State: whatsapp.StateConnecting}})
	defer ts.Close()

	_, body := getJSON(t, ts.URL+"/qr")
	if qr, present := body["qr"]; !present || qr != nil {
		t.Fatalf("expected null qr, got %v", qr)
	}
}

func TestQRDuringPairing(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{status: whatsapp.StatusUpdate{
		State:  whatsapp.StateQR,
		QRCode: "2@abcdef",
	}}
	ts := newTestServer(fake)
	defer ts.Close()

	_, body := getJSON(t, ts.URL+"/qr")
	if body["qr"] != "2@abcdef" {
		t.Fatalf("expected qr code, got %v", body["qr"])
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	ts := newTestServer(&fakeMessenger{})
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/send-message", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected allow-origin header")
	}
}

func TestConcurrentStatusAndSend(t *testing.T) {
	t.Parallel()

	fake := &fakeMessenger{sendID: "concurrent-id"}
	ts := newTestServer(fake)
	defer ts.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := http.Get(ts.URL + "/status")
			if err != nil {
				t.Errorf("status: %v", err)
				return
			}
			defer resp.Body.Close()
			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Errorf("decode status: %v", err)
				return
			}
			if _, present := body["connected"]; !present {
				t.Errorf("status response corrupted: %v", body)
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/send-message", "application/json",
				bytes.NewBufferString(`{"number":"08123","message":"hi"}`))
			if err != nil {
				t.Errorf("send: %v", err)
				return
			}
			defer resp.Body.Close()
			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Errorf("decode send: %v", err)
				return
			}
			if body["data"] != "concurrent-id" {
				t.Errorf("send response corrupted: %v", body)
			}
		}()
	}
	wg.Wait()
}
