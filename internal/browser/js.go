package browser

import (
	"encoding/json"

	"github.com/dgnsrekt/pendsync/internal/flow"
)

const (
	codeEvalFailure = "EVAL_FAILURE"
	codeNotFound    = "NOT_FOUND"
)

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type jsLocator struct {
	CSS  string `json:"css,omitempty"`
	Text string `json:"text,omitempty"`
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	Nth  int    `json:"nth"`
}

// locatorPrelude defines __find and __visible for a single locator.
// Text and role names match case-insensitively as substrings, keeping only
// the innermost elements so wrappers do not shadow the real control.
const locatorPrelude = `
const __norm = s => String(s || "").replace(/\s+/g, " ").trim().toLowerCase();
const __text = e => __norm(e.innerText !== undefined ? e.innerText : e.textContent);
const __innermost = (els, pred) => els.filter(e => !Array.from(e.children).some(c => pred(c)));
const __roleSelectors = {
  button: 'button, [role="button"], input[type="button"], input[type="submit"], input[type="reset"]',
  link: 'a[href], [role="link"]',
  tab: '[role="tab"]',
  textbox: 'input:not([type]), input[type="text"], input[type="password"], textarea, [role="textbox"]',
};
const __accName = e => __norm(e.getAttribute("aria-label") || e.value || e.innerText || e.textContent || e.title);
function __find(loc) {
  if (loc.css) return Array.from(document.querySelectorAll(loc.css));
  if (loc.text) {
    const want = __norm(loc.text);
    const pred = e => __text(e).includes(want);
    return __innermost(Array.from(document.body ? document.body.querySelectorAll("*") : []).filter(pred), pred);
  }
  if (loc.role) {
    const sel = __roleSelectors[loc.role] || '[role="' + loc.role + '"]';
    const all = Array.from(document.querySelectorAll(sel));
    if (!loc.name) return all;
    const want = __norm(loc.name);
    return all.filter(e => __accName(e).includes(want));
  }
  return [];
}
function __visible(el) {
  if (!el || !el.isConnected) return false;
  const st = window.getComputedStyle(el);
  if (st.display === "none" || st.visibility === "hidden" || Number(st.opacity) === 0) return false;
  const r = el.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
}
`

func toJSLocator(l flow.Locator) jsLocator {
	return jsLocator{CSS: l.CSS, Text: l.Text, Role: l.Role, Name: l.Name, Nth: l.Nth}
}

// locatorScript wraps body in an IIFE with `loc` bound and the locator
// helpers in scope.
func locatorScript(l flow.Locator, body string) string {
	return wrapJSEval(locatorPrelude + "const loc = " + jsJSON(toJSLocator(l)) + ";\n" + body)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + codeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(false, body) }

const jsCount = `return JSON.stringify({ok:true,data:__find(loc).length});`

const jsVisible = `const el = __find(loc)[loc.nth || 0];
return JSON.stringify({ok:true,data:__visible(el)});`

const jsActivate = `const el = __find(loc)[loc.nth || 0];
if (!el) return JSON.stringify({ok:false,error_code:"` + codeNotFound + `",error_message:"no element matches"});
el.click();
return JSON.stringify({ok:true,data:true});`

const jsRect = `const el = __find(loc)[loc.nth || 0];
if (!el) return JSON.stringify({ok:false,error_code:"` + codeNotFound + `",error_message:"no element matches"});
if (el.scrollIntoViewIfNeeded) { el.scrollIntoViewIfNeeded(true); } else { el.scrollIntoView({block:"center",inline:"center"}); }
const r = el.getBoundingClientRect();
return JSON.stringify({ok:true,data:{x:r.left,y:r.top,width:r.width,height:r.height}});`

const jsViewport = `return JSON.stringify({ok:true,data:{width:window.innerWidth,height:window.innerHeight}});`
