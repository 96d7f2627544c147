package repoql

import "strings"

// Content paths are absolute, '/'-separated, and the root is "/".

func normalizePath(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}

// parentPath returns the parent of p; ok is false for the root.
func parentPath(p string) (string, bool) {
	p = normalizePath(p)
	if p == "/" || p == "" {
		return "", false
	}
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/", true
	}
	return p[:i], true
}

// pathName returns the last segment of p, without a same-name sibling
// index. The root has the empty name.
func pathName(p string) string {
	p = normalizePath(p)
	name := p[strings.LastIndexByte(p, '/')+1:]
	if i := strings.IndexByte(name, '['); i > 0 && strings.HasSuffix(name, "]") {
		name = name[:i]
	}
	return name
}

// localName strips a namespace prefix: "jcr:content" → "content".
func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isDescendantPath(p, ancestor string) bool {
	p, ancestor = normalizePath(p), normalizePath(ancestor)
	if ancestor == "/" {
		return p != "/" && strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// resolvePath resolves rel against base, honouring "." and ".." segments.
// An absolute rel is returned normalized.
func resolvePath(base, rel string) string {
	if strings.HasPrefix(rel, "/") {
		base, rel = "/", rel[1:]
	}
	segs := strings.Split(strings.Trim(normalizePath(base), "/"), "/")
	if segs[0] == "" {
		segs = segs[:0]
	}
	for _, s := range strings.Split(rel, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(segs) > 0 {
				segs = segs[:len(segs)-1]
			}
		default:
			segs = append(segs, s)
		}
	}
	return "/" + strings.Join(segs, "/")
}

// childPrefix is the key prefix shared by every path below p.
func childPrefix(p string) string {
	return strings.TrimSuffix(p, "/") + "/"
}
