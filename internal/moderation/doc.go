// Package moderation screens outbound chat messages between clients and artists
// for attempts to take a booking off the platform: contact details, social
// handles, payment arrangements and external links. A message passes through a
// suspension gate, a pattern classifier and a severity aggregator before the
// decision is returned; infraction records and strikes are written afterwards
// as best-effort side effects.
package moderation
