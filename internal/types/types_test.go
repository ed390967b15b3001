package types

import "testing"

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindAvatar, KindChatImage, KindVoice, KindEmoji, KindVideo} {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("sticker"); ok {
		t.Fatal("expected unknown kind to fail")
	}
	if Kind(42).String() != "unknown" {
		t.Fatalf("unexpected string for out-of-range kind: %s", Kind(42))
	}
}

func TestMediaResultFound(t *testing.T) {
	if NotFound().Found() {
		t.Fatal("canonical not-found result reports Found")
	}
	if NotFound().Base64() != "" {
		t.Fatal("empty result should encode to empty string")
	}
	r := MediaResult{Payload: []byte("hi"), Format: FormatJPEG}
	if !r.Found() {
		t.Fatal("payload result should be found")
	}
	if r.Base64() != "aGk=" {
		t.Fatalf("Base64 = %q", r.Base64())
	}
	if !(MediaResult{Path: "/v/1.mp4"}).Found() {
		t.Fatal("path-only result should be found")
	}
}

func TestFormatIsImage(t *testing.T) {
	cases := map[Format]bool{
		FormatPNG: true, FormatJPEG: true, FormatGIF: true, FormatWEBP: true,
		FormatMP3: false, FormatMP4: false, FormatUnknown: false,
	}
	for f, want := range cases {
		if f.IsImage() != want {
			t.Errorf("%s.IsImage() = %v, want %v", f, !want, want)
		}
	}
	if FormatMP3.ContentType() != "audio/mpeg" {
		t.Fatalf("mp3 content type = %s", FormatMP3.ContentType())
	}
}
