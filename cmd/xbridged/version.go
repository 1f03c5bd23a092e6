// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

// appName identifies this binary in log lines and the default app-data
// directory name.
const appName = "xbridged"

// Version is the application version, semver-formatted. Overridable at
// build time with '-ldflags "-X main.Version=fullsemver"'.
var Version = "0.1.0"
