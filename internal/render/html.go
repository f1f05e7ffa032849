package render

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"html/template"
	"strings"
)

var bubbleTmpl = template.Must(template.New("bubble").Parse(
	`<div class="message {{.Class}}" data-message-id="{{.MessageID}}">` +
		`{{if .Avatar.URL}}<img src="{{.Avatar.URL}}" alt="{{.Avatar.Alt}}" class="message-avatar">` +
		`{{else if .Avatar.AgentIcon}}<div class="message-avatar-placeholder"><i class="fas fa-user-tie"></i></div>` +
		`{{else}}<div class="message-avatar-placeholder">{{.Avatar.Initial}}</div>{{end}}` +
		`<div class="message-content">` +
		`<div class="message-bubble">{{.Content}}</div>` +
		`{{with .Attachment}}<div class="message-attachment">` +
		`{{if .Inline}}<a href="{{.URL}}" target="_blank" rel="noopener"><img src="{{.URL}}" alt="{{.Name}}"></a>` +
		`{{else}}<a href="{{.URL}}" target="_blank" download><i class="fas fa-file"></i><span>{{.Name}}</span></a>{{end}}` +
		`</div>{{end}}` +
		`<div class="message-time">{{.Time}}</div>` +
		`</div></div>`))

var noticeTmpl = template.Must(template.New("notice").Parse(
	`<div class="message system-message" data-notice="{{.Kind}}"><div class="message-bubble">` +
		`{{.Text}}{{if .LinkURL}}<a href="{{.LinkURL}}">{{.LinkText}}</a>{{end}}{{.Suffix}}` +
		`</div></div>`))

// FragmentCache stores rendered bubble fragments.
type FragmentCache interface {
	Get(key string) (string, bool)
	Set(key, html string)
}

// BubbleHTML renders b as an HTML fragment. All text is escaped.
func BubbleHTML(b Bubble) (string, error) {
	var sb strings.Builder
	if err := bubbleTmpl.Execute(&sb, b); err != nil {
		return "", fmt.Errorf("render bubble %d: %w", b.MessageID, err)
	}
	return sb.String(), nil
}

// NoticeHTML renders n as an HTML fragment.
func NoticeHTML(n Notice) (string, error) {
	var sb strings.Builder
	if err := noticeTmpl.Execute(&sb, n); err != nil {
		return "", fmt.Errorf("render notice %s: %w", n.Kind, err)
	}
	return sb.String(), nil
}

// Fragments renders bubbles through an optional cache.
type Fragments struct {
	cache FragmentCache
}

// NewFragments returns a renderer backed by cache. A nil cache disables
// caching.
func NewFragments(cache FragmentCache) *Fragments {
	return &Fragments{cache: cache}
}

// Bubble returns the fragment for b, rendering it on a cache miss.
func (f *Fragments) Bubble(b Bubble) (string, error) {
	if f == nil || f.cache == nil {
		return BubbleHTML(b)
	}
	key := cacheKey(b)
	if html, ok := f.cache.Get(key); ok {
		return html, nil
	}
	html, err := BubbleHTML(b)
	if err != nil {
		return "", err
	}
	f.cache.Set(key, html)
	return html, nil
}

// Transcript renders every bubble of t, or its notice.
func (f *Fragments) Transcript(t Transcript) ([]string, error) {
	if t.Notice != nil {
		html, err := NoticeHTML(*t.Notice)
		if err != nil {
			return nil, err
		}
		return []string{html}, nil
	}
	out := make([]string, 0, len(t.Bubbles))
	for _, b := range t.Bubbles {
		html, err := f.Bubble(b)
		if err != nil {
			return nil, err
		}
		out = append(out, html)
	}
	return out, nil
}

// cacheKey keys a fragment by message id plus a digest of everything that
// can change the output, so edited messages are re-rendered.
func cacheKey(b Bubble) string {
	h := fnv.New64a()
	// JSON quotes every field, so no two bubbles share an encoding.
	_ = json.NewEncoder(h).Encode(b)
	return fmt.Sprintf("%d:%x", b.MessageID, h.Sum64())
}
