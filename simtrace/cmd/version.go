package cmd

// Version is the version of simtrace. It can be overridden at build time via
// -ldflags.
var Version = "0.1.0"
