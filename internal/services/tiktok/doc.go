// Package tiktok renders TikTok photo posts ("slideshows") to mp4.
//
// yt-dlp cannot download photo posts, so the item-detail web API is queried
// directly. Requests are signed by evaluating the xbogus npm module under
// node, and the slides are stitched by ffmpeg's concat demuxer with each
// frame letterboxed onto a common canvas.
package tiktok
