// Package discordbot connects the acquisition pipeline to Discord.
//
// One gateway session runs per configured token. A message with exactly one
// link matching a rule is downloaded and uploaded as a reply; oversized
// results fall back to a rewritten link, and messages in the admin config
// channel replace the rule document. The first session to become ready
// attaches the admin log channel as a remote log sink.
package discordbot
