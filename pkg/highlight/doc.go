/*
Package highlight turns source text into styled HTML using a TextMate grammar.

Pipeline:
--------

	  grammar repository                 source text
	          |                                |
	          v                                v
	    +-----------+                  +---------------+
	    |   Walk    |                  |      Run      |  one line at a time,
	    +-----------+                  +---------------+  rule stack threaded
	          |                                |
	     scope names                     tokens + scopes
	          |                                |
	          v                                v
	    +-----------+   ToIdentifier   +---------------+
	    | Classifier| ---------------> |     Sink      |
	    +-----------+                  +---------------+
	          |                                |
	     style block                     <pre><code><span>
	          |                                |
	          +-------------+------------------+
	                        v
	                 +-------------+
	                 |  Assemble   |
	                 +-------------+
	                        |
	                        v
	          <style>...</style> + <pre><code>...

Style rules:
-----------
A StyleTable is an ordered list of (pattern, declaration) pairs and the first
match wins. A scope with no matching rule still becomes a class on its spans;
it just gets no CSS of its own.

Identifiers:
-----------
ToIdentifier replaces every character outside [A-Za-z0-9_] with "--", so
"comment.line.double-slash.ts" becomes "comment--line--double--slash--ts".
Distinct scopes may collide; that is accepted.
*/
package highlight
