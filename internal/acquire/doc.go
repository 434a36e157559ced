// Package acquire turns a shared link into a file fit for delivery.
//
// Pipeline.Acquire resolves redirects, sends TikTok photo posts to the
// slideshow renderer, runs the managed yt-dlp with bounded retries, probes
// the download, and re-encodes it when it is corrupt or outside the
// delivery contract. Each attempt writes to a fresh random path in the
// scratch directory, so concurrent acquisitions never share files.
package acquire
