// Package alerts evaluates threshold rules against the relay's own metric
// series and notifies webhooks when a rule fires or resolves.
//
// A rule condition is "series op value", where series is a name returned by
// metrics.Values (connections_active, rooms, messages_dropped_total, ...).
// Engine.Run polls the series on alerts.interval. A rule that fired stays
// quiet for its cooldown (default 15m) after resolving. Webhook targets are
// Slack, Teams, or a generic HTTP endpoint; their URLs come from the
// environment.
//
// Engine.Active backs GET /api/v1/alerts.
package alerts
