package tgui

import "html"

// H represents HTML that is safe to pass to Telegram when ParseMode="HTML".
// Values of type H should be treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
//
// Telegram only recognises &lt; &gt; &amp; &quot; as named entities; the
// stdlib escaper also emits &#39; which Telegram accepts as a numeric entity.
func Esc(s string) H { return H(html.EscapeString(s)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H { return wrap("b", Esc(s)) }

// Link builds an HTML link. Both the text and the href are escaped.
func Link(text, url string) H {
	return H(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`)
}
