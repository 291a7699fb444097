// Package dispatch delivers side-effect events to RabbitMQ after movements
// commit. Delivery is fire-and-forget: events are queued in memory, published
// by a background worker with bounded retries, and dropped with a log line
// when the broker stays unreachable. A failed or dropped event never affects
// the outcome of the movement that produced it.
package dispatch
