// Package prntsc resolves share codes on prnt.sc to screenshot image URLs.
//
// A share page at https://prnt.sc/<code> names its image in an og:image meta
// tag. Removed or never-issued codes either answer with a non-2xx status, lack
// the tag, or point it at a placeholder on st.prntscr.com; all of those are
// reported as misses.
package prntsc
