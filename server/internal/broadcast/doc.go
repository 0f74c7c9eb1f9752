// Package broadcast implements the in-process publish point behind each chat
// room.
//
// A Room fans every published string out to all of its Subscriptions. Each
// subscription has a bounded buffer; a subscriber that falls more than
// Capacity messages behind is disconnected (ErrLagged) rather than allowed to
// block the publisher or silently skip ahead.
package broadcast
