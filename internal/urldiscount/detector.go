// Package urldiscount finds promotion codes in storefront page URLs.
package urldiscount

import (
	"net/url"
	"strings"
	"sync"

	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
)

// Param is the query parameter carrying a discount code.
const Param = "discount"

// Detection is the discount found in a page URL.
type Detection struct {
	Code      string
	IsFromURL bool
}

// Detect reads the discount parameter from the page URL's own query string.
// A value that is blank after trimming counts as absent.
func Detect(u *url.URL) Detection {
	if u == nil {
		return Detection{}
	}
	code := discount.NormalizeCode(u.Query().Get(Param))
	return Detection{Code: code, IsFromURL: code != ""}
}

// ParsePage parses a page URL as sent by the storefront (absolute or path-only).
func ParsePage(raw string) (*url.URL, error) {
	return url.Parse(strings.TrimSpace(raw))
}

// ClearDiscountFromURL returns u without the discount parameter. The other
// parameters keep their order and encoding. The result is meant for a
// history replace, so only path, query and fragment are kept for relative input.
func ClearDiscountFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	out := *u
	out.RawQuery = stripParam(u.RawQuery, Param)
	out.ForceQuery = false
	return out.String()
}

func stripParam(rawQuery, name string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		key := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			key = part[:i]
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if key == name {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

// Detector remembers the last code it saw so repeated detections of the same
// normalized code don't re-trigger work.
type Detector struct {
	mu   sync.Mutex
	last string
}

// Observe records code and reports whether it differs from the previous one.
// An absent code resets the memory.
func (d *Detector) Observe(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code == d.last {
		return false
	}
	d.last = code
	return code != ""
}

// Forget clears the remembered code.
func (d *Detector) Forget() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
}
