// Package event defines the typed publish/subscribe surface for memory
// notifications: a closed set of event variants (block mutations, turn
// appends, compactions, summaries, learned facts, session transitions)
// delivered synchronously to subscribers.
//
// Subscriptions come in two forms. Subscribe filters by event kind;
// SubscribeWhere gates delivery on a CEL expression evaluated against
// the event's attribute map, so callers can match on payload fields
// without writing Go:
//
//	bus.SubscribeWhere(`event.kind == "block_set" && event.truncated`, onWarning)
//
// Attribute maps only carry the keys relevant to each variant; filters
// that touch other variants' keys should guard with the CEL `in`
// operator (`"label" in event && event.label == "persona"`).
package event
