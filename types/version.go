package types

// Version is the canonical project version.
// The CLI, the admin IPC contract and the notification wire protocol
// revision are released together under this version.
const Version = "0.3.0"
