package serve

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gftdcojp/wxmedia/internal/codec"
	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/resolve"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var gifBody = append([]byte("GIF89a"), bytes.Repeat([]byte{0x03}, 26)...)

// fakeTranscoder returns the path it was given as the payload.
type fakeTranscoder struct{}

func (fakeTranscoder) Transcode(_ context.Context, path string) (types.MediaResult, error) {
	return types.MediaResult{Payload: []byte(path), Format: types.FormatMP3, DurationMS: 1200}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, resource.Layout) {
	t.Helper()
	layout := resource.NewLayout(t.TempDir())
	r := resolve.New(resolve.Deps{Layout: layout, Voice: fakeTranscoder{}}, zap.NewNop())
	t.Cleanup(func() { r.Close(context.Background()) })

	srv := httptest.NewServer(NewMux(r, layout, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, layout
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

func TestHandler_Status(t *testing.T) {
	srv, _ := newTestServer(t)
	body := getJSON(t, srv.URL+"/v1/status", http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	res, ok := body["resolver"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing resolver status: %v", body)
	}
	if res["transcoder"] != true || res["codec"] != false {
		t.Fatalf("unexpected resolver status %v", res)
	}
}

func TestHandler_Emoji(t *testing.T) {
	srv, layout := newTestServer(t)
	digest := content.Digest(gifBody)
	writeFile(t, filepath.Join(layout.Dir(resource.DirEmoji), digest), gifBody)

	body := getJSON(t, srv.URL+"/v1/emojis/"+digest, http.StatusOK)
	if body["format"] != "gif" || body["content_type"] != "image/gif" {
		t.Fatalf("unexpected body %v", body)
	}
	data, err := base64.StdEncoding.DecodeString(body["data"].(string))
	if err != nil || !bytes.Equal(data, gifBody) {
		t.Fatalf("payload mismatch (%v)", err)
	}

	resp, err := http.Get(srv.URL + "/v1/emojis/" + digest + "?raw=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw bytes.Buffer
	raw.ReadFrom(resp.Body)
	if resp.Header.Get("Content-Type") != "image/gif" || !bytes.Equal(raw.Bytes(), gifBody) {
		t.Fatalf("raw response: %s, %d bytes", resp.Header.Get("Content-Type"), raw.Len())
	}
}

func TestHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	getJSON(t, srv.URL+"/v1/emojis/"+content.DigestString("nothing"), http.StatusNotFound)
	getJSON(t, srv.URL+"/v1/emojis/not-a-digest", http.StatusNotFound)
	getJSON(t, srv.URL+"/v1/avatars/wxid_nobody", http.StatusNotFound)
	getJSON(t, srv.URL+"/v1/images?path=THUMBNAIL_DIRPATH://th_ffff0000", http.StatusNotFound)
}

func TestHandler_ImageRequiresPath(t *testing.T) {
	srv, _ := newTestServer(t)
	getJSON(t, srv.URL+"/v1/images", http.StatusBadRequest)
}

func TestHandler_Voice(t *testing.T) {
	srv, layout := newTestServer(t)
	body := getJSON(t, srv.URL+"/v1/voices/abcd1234", http.StatusOK)
	if body["format"] != "mp3" || body["duration_ms"] != float64(1200) {
		t.Fatalf("unexpected body %v", body)
	}
	data, _ := base64.StdEncoding.DecodeString(body["data"].(string))
	if string(data) != layout.VoicePath("abcd1234") {
		t.Fatalf("transcoded %q", data)
	}
}

func TestHandler_VoiceRejectsTraversal(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/voices/x%2F..%2F..%2F..%2Fetc%2Fsecret")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandler_Prefetch(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/voices/prefetch", "application/json",
		strings.NewReader(`{"paths":["a1b2c3d4","a1b2c3d4","e5f6a7b8"]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]int
	json.NewDecoder(resp.Body).Decode(&body)
	if body["submitted"] != 2 {
		t.Fatalf("submitted = %d, want 2", body["submitted"])
	}

	bad, err := http.Post(srv.URL+"/v1/voices/prefetch", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status %d", bad.StatusCode)
	}
}

func TestHandler_Video(t *testing.T) {
	srv, layout := newTestServer(t)
	video, _ := layout.VideoPaths("v1")
	writeFile(t, video, []byte("not really mp4"))

	body := getJSON(t, srv.URL+"/v1/videos/v1", http.StatusOK)
	if body["path"] != video || body["format"] != "mp4" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["data"]; ok {
		t.Fatal("video response should reference the file, not inline it")
	}

	resp, err := http.Get(srv.URL + "/v1/videos/v1?raw=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw bytes.Buffer
	raw.ReadFrom(resp.Body)
	if raw.String() != "not really mp4" {
		t.Fatalf("raw video body %q", raw.String())
	}
}

func TestHandler_Paths(t *testing.T) {
	srv, layout := newTestServer(t)
	body := getJSON(t, srv.URL+"/v1/paths?wcf=wcf://video/v1.mp4", http.StatusOK)
	paths, _ := body["paths"].([]interface{})
	if len(paths) != 2 || paths[0] != filepath.Join(layout.Dir(resource.DirVideo), "v1.mp4") {
		t.Fatalf("unexpected paths %v", paths)
	}
	getJSON(t, srv.URL+"/v1/paths?wcf=/etc/passwd", http.StatusBadRequest)
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestCodecResponder(t *testing.T) {
	nc := startNATS(t)
	upstream := codec.NewGateway(codec.DecodeFunc(func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte("decoded:"), payload[4:]...), nil
	}), codec.Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	cfg := config.CodecResponderConfig{Enabled: true, Subject: "wxmedia.codec.test", Queue: "codec"}
	go func() { done <- RunCodecResponder(ctx, nc, cfg, upstream, zap.NewNop()) }()

	client := codec.NewGateway(codec.NewNATSTransport(nc, cfg.Subject), codec.Options{Timeout: 2 * time.Second}, zap.NewNop())
	deadline := time.Now().Add(5 * time.Second)
	var got []byte
	var err error
	for time.Now().Before(deadline) {
		got, err = client.Decode(context.Background(), []byte("wxgfBODY"))
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("decode over nats: %v", err)
	}
	if string(got) != "decoded:BODY" {
		t.Fatalf("got %q", got)
	}

	// A foreign header fails upstream and comes back as the sentinel.
	msg, err := nc.Request(cfg.Subject, []byte("GIF89a"), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg.Data, codec.FailureSentinel) {
		t.Fatalf("expected failure sentinel, got %q", msg.Data)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not stop")
	}
}
