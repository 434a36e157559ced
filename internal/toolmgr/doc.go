// Package toolmgr keeps a versioned external executable (yt-dlp) current.
//
// Manager installs builds advertised by a release feed into a cache
// directory, one file per version, and hands out the committed path to
// concurrent readers. Scheduler triggers throttled background refreshes
// from the acquisition path without ever blocking it.
package toolmgr
