// Package resource knows the directory layout of the copied resource root:
// per-kind subdirectories, digest sharding and wcf:// virtual paths.
package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gftdcojp/wxmedia/internal/content"
)

// Subdirectories of the resource root.
const (
	DirImage2     = "image2"
	DirImage      = "image"
	DirVoice      = "voice2"
	DirEmoji      = "emoji"
	DirVideo      = "video"
	DirAvatar     = "avatar"
	DirSFS        = "sfs"
	DirAttachment = "attachment"
	DirOpenAPI    = "openapi"
)

// Layout resolves paths under one resource root.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

// Dir returns the named subdirectory of the root.
func (l Layout) Dir(name string) string {
	return filepath.Join(l.Root, name)
}

// Check reports subdirectories that are missing. A missing directory only
// disables the kinds stored there.
func (l Layout) Check() []string {
	var missing []string
	for _, d := range []string{DirImage2, DirVoice, DirEmoji, DirVideo, DirAvatar, DirSFS} {
		if st, err := os.Stat(l.Dir(d)); err != nil || !st.IsDir() {
			missing = append(missing, d)
		}
	}
	return missing
}

// ShardDir returns base/key[0:2]/key[2:4].
func ShardDir(base, key string) (string, error) {
	if len(key) < 4 {
		return "", fmt.Errorf("key %q too short to shard", key)
	}
	return filepath.Join(base, key[0:2], key[2:4]), nil
}

// VoicePath is where the clip for a message's stored path lives. The shard
// comes from the digest of the stored path, the file name from the path.
func (l Layout) VoicePath(imgPath string) string {
	d := content.DigestString(imgPath)
	dir, _ := ShardDir(l.Dir(DirVoice), d)
	return filepath.Join(dir, "msg_"+imgPath+".amr")
}

// VideoPaths returns the video file and its thumbnail sibling.
func (l Layout) VideoPaths(id string) (video, thumbnail string) {
	base := filepath.Join(l.Dir(DirVideo), id)
	return base + ".mp4", base + ".jpg"
}

// AvatarPath is where a downloaded avatar is persisted.
func (l Layout) AvatarPath(digest string) (string, error) {
	dir, err := ShardDir(l.Dir(DirAvatar), digest)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "user_"+digest+".png"), nil
}

// Candidate is one directory entry considered by a lookup.
type Candidate struct {
	Path  string
	Name  string
	Size  int64
	IsDir bool
}

// ListMatching returns the entries of dir whose name satisfies match, in
// directory order. A missing dir is not an error.
func ListMatching(dir string, match func(name string) bool) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var out []Candidate
	for _, e := range entries {
		if !match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Candidate{
			Path:  filepath.Join(dir, e.Name()),
			Name:  e.Name(),
			Size:  info.Size(),
			IsDir: e.IsDir(),
		})
	}
	return out, nil
}

// ExpandDirs replaces each directory candidate with the regular files inside
// it, one level deep.
func ExpandDirs(cands []Candidate) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !c.IsDir {
			out = append(out, c)
			continue
		}
		inner, err := ListMatching(c.Path, func(string) bool { return true })
		if err != nil {
			continue
		}
		for _, ic := range inner {
			if !ic.IsDir {
				out = append(out, ic)
			}
		}
	}
	return out
}

// SortBySize orders candidates by ascending size, keeping directory order
// between equal sizes.
func SortBySize(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Size < cands[j].Size
	})
}
