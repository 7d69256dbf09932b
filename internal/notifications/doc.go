// Package notifications delivers run outcomes by email.
//
// The default implementation sends through the configured SMTP relay and
// gracefully degrades to a no-op when no recipient is configured, so the
// scheduler and CLI never branch on whether email is set up.
package notifications
