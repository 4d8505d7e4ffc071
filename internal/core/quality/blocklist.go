package quality

import (
	"bufio"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"

	"golang.org/x/net/publicsuffix"
)

// Blocklist is a UT1 style category tree loaded into memory.
// Layout is <root>/<category>/domains with an optional <root>/<category>/urls
type Blocklist struct {
	domains map[string][]string
	urls    map[string][]string
	cats    []string
}

// LoadBlocklist reads every category under root, or only those named in categories.
// A missing root, a missing named category or an empty result is an error
func LoadBlocklist(root string, categories []string) (*Blocklist, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeBlocklist, "read blocklist root %s", root)
	}

	want := map[string]bool{}
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			want[c] = true
		}
	}

	bl := &Blocklist{domains: map[string][]string{}, urls: map[string][]string{}}
	for _, e := range entries {
		if !e.IsDir() || (len(want) > 0 && !want[e.Name()]) {
			continue
		}
		cat := e.Name()
		dir := filepath.Join(root, cat)
		if err := bl.loadList(filepath.Join(dir, "domains"), cat, bl.domains, normalizeDomain); err != nil {
			return nil, err
		}
		if err := bl.loadList(filepath.Join(dir, "urls"), cat, bl.urls, normalizeURLEntry); err != nil {
			return nil, err
		}
		bl.cats = append(bl.cats, cat)
		delete(want, cat)
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for c := range want {
			missing = append(missing, c)
		}
		sort.Strings(missing)
		return nil, perr.Newf(perr.ErrorCodeBlocklist, "blocklist categories not found under %s: %s", root, strings.Join(missing, ","))
	}
	if len(bl.domains) == 0 {
		return nil, perr.Newf(perr.ErrorCodeBlocklist, "blocklist %s has no domains", root)
	}
	sort.Strings(bl.cats)
	return bl, nil
}

// NewBlocklist builds a list from in-memory maps of entry -> categories
func NewBlocklist(domains, urls map[string][]string) *Blocklist {
	bl := &Blocklist{domains: map[string][]string{}, urls: map[string][]string{}}
	seen := map[string]bool{}
	add := func(dst map[string][]string, src map[string][]string, norm func(string) string) {
		for k, cats := range src {
			for _, c := range cats {
				addCat(dst, norm(k), c)
				if !seen[c] {
					seen[c] = true
					bl.cats = append(bl.cats, c)
				}
			}
		}
	}
	add(bl.domains, domains, normalizeDomain)
	add(bl.urls, urls, normalizeURLEntry)
	sort.Strings(bl.cats)
	return bl
}

func (bl *Blocklist) loadList(path, cat string, dst map[string][]string, norm func(string) string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeBlocklist, "open %s", path)
	}
	defer f.Close()
	return readList(f, cat, dst, norm)
}

func readList(r io.Reader, cat string, dst map[string][]string, norm func(string) string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k := norm(line); k != "" {
			addCat(dst, k, cat)
		}
	}
	if err := sc.Err(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeBlocklist, "read %s list", cat)
	}
	return nil
}

func addCat(dst map[string][]string, key, cat string) {
	if key == "" || slices.Contains(dst[key], cat) {
		return
	}
	dst[key] = append(dst[key], cat)
	sort.Strings(dst[key])
}

// Categories lists the loaded categories, sorted
func (bl *Blocklist) Categories() []string { return slices.Clone(bl.cats) }

// Len is the number of distinct domain entries
func (bl *Blocklist) Len() int { return len(bl.domains) }

// Lookup returns every category matching rawURL, sorted and deduplicated.
// Domains match on the host or any parent down to the registrable domain
func (bl *Blocklist) Lookup(rawURL string) []string {
	host, path := splitURL(rawURL)
	if host == "" {
		return nil
	}
	var out []string
	for _, h := range suffixes(host) {
		for _, c := range bl.domains[h] {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	if len(bl.urls) > 0 {
		for _, c := range bl.urls[strings.TrimSuffix(host+path, "/")] {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Match returns the first matching category in sorted order
func (bl *Blocklist) Match(rawURL string) (string, bool) {
	cats := bl.Lookup(rawURL)
	if len(cats) == 0 {
		return "", false
	}
	return cats[0], true
}

// suffixes walks from host down to its eTLD+1; IPs and bare suffixes yield only themselves
func suffixes(host string) []string {
	out := []string{host}
	if net.ParseIP(host) != nil {
		return out
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || reg == host {
		return out
	}
	h := host
	for {
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return out
		}
		h = h[i+1:]
		out = append(out, h)
		if h == reg {
			return out
		}
	}
}

func splitURL(rawURL string) (host, path string) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", ""
	}
	return normalizeDomain(u.Hostname()), u.EscapedPath()
}

func hostOf(rawURL string) string {
	h, _ := splitURL(rawURL)
	return h
}

func normalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

// normalizeURLEntry turns "www.Example.com/a/b/" into "example.com/a/b"
func normalizeURLEntry(s string) string {
	host, path := splitURL(s)
	if host == "" {
		return ""
	}
	return strings.TrimSuffix(host+path, "/")
}
