package rewrite

import (
	"strings"
	"text/template"
)

// The shim wraps fetch and XMLHttpRequest.open so that URLs built at
// runtime and pointing at the target host or its subdomains go through
// the gateway. It installs itself once per page.
var shimTemplate = template.Must(template.New("shim").Parse(`(function(){
if (globalThis.__subgateShim) return;
globalThis.__subgateShim = true;
var base = "{{js .GatewayBase}}", origin = "{{js .TargetOrigin}}", host = "{{js .TargetHost}}";
function rewrite(u) {
  try {
    var s = typeof u === "string" ? u : String(u);
    var url = new URL(s, globalThis.location ? globalThis.location.href : origin);
    var h = url.hostname.toLowerCase();
    if (url.port || (url.protocol !== "http:" && url.protocol !== "https:")) return u;
    if (h !== host && h.slice(-host.length - 1) !== "." + host) return u;
    url.protocol = "https:";
    url.host = h.split(".").join("--") + "." + base;
    return url.href;
  } catch (e) {
    return u;
  }
}
if (typeof globalThis.fetch === "function") {
  var fetch = globalThis.fetch;
  globalThis.fetch = function(input, init) {
    if (typeof Request !== "undefined" && input instanceof Request) {
      var r = rewrite(input.url);
      if (r !== input.url) input = new Request(r, input);
    } else {
      input = rewrite(input);
    }
    return fetch.call(this, input, init);
  };
}
if (typeof XMLHttpRequest !== "undefined") {
  var open = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function(method, u) {
    var args = Array.prototype.slice.call(arguments);
    args[1] = rewrite(u);
    return open.apply(this, args);
  };
}
})();
`))

type shimParams struct {
	GatewayBase  string
	TargetOrigin string
	TargetHost   string
}

// Shim renders the runtime script for the context. When the rendering
// fails, it returns an empty string.
func (c *Context) Shim() string {
	var b strings.Builder
	if err := shimTemplate.Execute(&b, shimParams{
		GatewayBase:  c.GatewayBase,
		TargetOrigin: c.TargetOrigin(),
		TargetHost:   c.TargetHost(),
	}); err != nil {
		return ""
	}

	return b.String()
}
