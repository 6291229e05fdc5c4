// Package notify delivers task and project notifications over email,
// SMS and WhatsApp, honoring per-user channel preferences. Delivery is
// best effort; an unconfigured channel is a logged no-op.
package notify
