package internal

// Version is the CLI version reported by --version.
const Version = "0.3.0"
