// Package media holds the client-side bookkeeping for native media
// handles: a session-owned registry, the typed command dispatcher that
// talks to a Bridge, and the demultiplexer that turns inbound status
// events back into handle state and user callbacks.
//
// Nothing in this package plays or records audio. The native engine sits
// behind the Bridge interface and is reached only through
// (method, args) commands and asynchronous replies.
package media
