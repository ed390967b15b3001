package resource

import (
	"fmt"
	"path/filepath"
	"strings"
)

// VirtualScheme prefixes paths recorded in the file index database.
const VirtualScheme = "wcf://"

var virtualAreas = map[string]string{
	DirAttachment: DirAttachment,
	DirOpenAPI:    DirOpenAPI,
	DirVideo:      DirVideo,
	DirImage:      DirImage,
	DirImage2:     DirImage2,
	DirVoice:      DirVoice,
	DirEmoji:      DirEmoji,
	DirSFS:        DirSFS,
}

// ResolveVirtual maps wcf://<area>/<rest> to a path under the root.
// wcf://voice/<name> uses the voice shard layout keyed by the name itself.
func (l Layout) ResolveVirtual(wcf string) (string, error) {
	rest, ok := strings.CutPrefix(wcf, VirtualScheme)
	if !ok {
		return "", fmt.Errorf("%q is not a %s path", wcf, VirtualScheme)
	}
	area, name, ok := strings.Cut(rest, "/")
	if !ok || area == "" {
		return "", fmt.Errorf("invalid virtual path %q", wcf)
	}

	if area == "voice" {
		if len(name) < 4 {
			return filepath.Join(l.Dir(DirVoice), filepath.FromSlash(name)), nil
		}
		return filepath.Join(l.Dir(DirVoice), name[0:2], name[2:4], "msg_"+name), nil
	}

	dir, known := virtualAreas[area]
	if !known {
		return "", fmt.Errorf("unknown virtual area %q", area)
	}
	return filepath.Join(l.Dir(dir), filepath.FromSlash(name)), nil
}

// Alternatives returns the resolved path followed by the other places the
// same file is known to end up: image2 content under image, and the
// thumbnail of an mp4.
func (l Layout) Alternatives(wcf string) ([]string, error) {
	main, err := l.ResolveVirtual(wcf)
	if err != nil {
		return nil, err
	}
	paths := []string{main}

	switch {
	case strings.HasPrefix(wcf, VirtualScheme+DirImage2+"/"):
		rel := strings.TrimPrefix(wcf, VirtualScheme+DirImage2+"/")
		paths = append(paths, filepath.Join(l.Dir(DirImage), filepath.FromSlash(rel)))
	case strings.HasPrefix(wcf, VirtualScheme+DirVideo+"/") && strings.HasSuffix(main, ".mp4"):
		paths = append(paths, strings.TrimSuffix(main, ".mp4")+".jpg")
	}
	return paths, nil
}
