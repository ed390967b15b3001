package resource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gftdcojp/wxmedia/internal/content"
)

func touch(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestShardDir(t *testing.T) {
	got, err := ShardDir("/r/avatar", "abcdef0123")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/r/avatar", "ab", "cd") {
		t.Fatalf("ShardDir = %s", got)
	}
	if _, err := ShardDir("/r", "abc"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestVoicePath(t *testing.T) {
	l := NewLayout("/res")
	imgPath := "1709876543210abcd"
	d := content.DigestString(imgPath)
	want := filepath.Join("/res", DirVoice, d[0:2], d[2:4], "msg_"+imgPath+".amr")
	if got := l.VoicePath(imgPath); got != want {
		t.Fatalf("VoicePath = %s, want %s", got, want)
	}
}

func TestVideoAndAvatarPaths(t *testing.T) {
	l := NewLayout("/res")
	v, th := l.VideoPaths("1234")
	if v != filepath.Join("/res", "video", "1234.mp4") || th != filepath.Join("/res", "video", "1234.jpg") {
		t.Fatalf("VideoPaths = %s, %s", v, th)
	}
	p, err := l.AvatarPath("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join("/res", "avatar", "01", "23", "user_0123456789abcdef0123456789abcdef.png") {
		t.Fatalf("AvatarPath = %s", p)
	}
}

func TestListMatchingAndExpand(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "abc.png"), 10)
	touch(t, filepath.Join(root, "th_abc"), 3)
	touch(t, filepath.Join(root, "other"), 5)
	touch(t, filepath.Join(root, "abc_dir", "inner.bm"), 7)

	cands, err := ListMatching(root, func(n string) bool { return strings.Contains(n, "abc") })
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 3 {
		t.Fatalf("got %d candidates, want 3", len(cands))
	}

	expanded := ExpandDirs(cands)
	var names []string
	for _, c := range expanded {
		if c.IsDir {
			t.Fatalf("directory %s survived expansion", c.Path)
		}
		names = append(names, c.Name)
	}
	if len(names) != 3 || !contains(names, "inner.bm") {
		t.Fatalf("expanded names = %v", names)
	}

	SortBySize(expanded)
	if expanded[0].Name != "th_abc" || expanded[len(expanded)-1].Name != "abc.png" {
		t.Fatalf("unexpected order: %v", expanded)
	}
}

func TestListMatchingMissingDir(t *testing.T) {
	cands, err := ListMatching(filepath.Join(t.TempDir(), "none"), func(string) bool { return true })
	if err != nil || cands != nil {
		t.Fatalf("missing dir = %v, %v", cands, err)
	}
}

func TestCheckReportsMissing(t *testing.T) {
	root := t.TempDir()
	os.Mkdir(filepath.Join(root, DirEmoji), 0o755)
	missing := NewLayout(root).Check()
	if contains(missing, DirEmoji) || !contains(missing, DirImage2) {
		t.Fatalf("missing = %v", missing)
	}
}

func TestResolveVirtual(t *testing.T) {
	l := NewLayout("/res")
	cases := map[string]string{
		"wcf://attachment/the-bath-song-flashcards.pdf":      "/res/attachment/the-bath-song-flashcards.pdf",
		"wcf://openapi/thumb/a3/7f/msgth_a37fd3f5":           "/res/openapi/thumb/a3/7f/msgth_a37fd3f5",
		"wcf://image2/88/2a/th_882a":                         "/res/image2/88/2a/th_882a",
		"wcf://voice/1234abcd.amr":                           "/res/voice2/12/34/msg_1234abcd.amr",
		"wcf://voice/ab":                                     "/res/voice2/ab",
		"wcf://voice2/12/34/msg_x.amr":                       "/res/voice2/12/34/msg_x.amr",
		"wcf://sfs/avatar.block.00000":                       "/res/sfs/avatar.block.00000",
		"wcf://emoji/group/0123456789abcdef0123456789abcdef": "/res/emoji/group/0123456789abcdef0123456789abcdef",
		"wcf://video/1234.mp4":                               "/res/video/1234.mp4",
	}
	for in, want := range cases {
		got, err := l.ResolveVirtual(in)
		if err != nil {
			t.Errorf("ResolveVirtual(%q): %v", in, err)
			continue
		}
		if got != filepath.FromSlash(want) {
			t.Errorf("ResolveVirtual(%q) = %s, want %s", in, got, want)
		}
	}

	for _, bad := range []string{"/res/image2/x", "wcf://", "wcf://nowhere/x", "wcf://image2"} {
		if _, err := l.ResolveVirtual(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAlternatives(t *testing.T) {
	l := NewLayout("/res")

	alts, err := l.Alternatives("wcf://image2/88/2a/th_x")
	if err != nil {
		t.Fatal(err)
	}
	if len(alts) != 2 || alts[1] != filepath.FromSlash("/res/image/88/2a/th_x") {
		t.Fatalf("image alternatives = %v", alts)
	}

	alts, _ = l.Alternatives("wcf://video/9.mp4")
	if len(alts) != 2 || alts[1] != filepath.FromSlash("/res/video/9.jpg") {
		t.Fatalf("video alternatives = %v", alts)
	}

	alts, _ = l.Alternatives("wcf://attachment/a.pdf")
	if len(alts) != 1 {
		t.Fatalf("attachment alternatives = %v", alts)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
