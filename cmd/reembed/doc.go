// Command reembed runs the link re-embedding bot and its maintenance tools.
//
// `reembed run` starts the daemon: it keeps the extraction tool current,
// watches chat for supported links, and replies with the media. The other
// subcommands inspect and edit link rules, manage the extraction tool, and
// perform one-shot acquisitions from a terminal.
package main
