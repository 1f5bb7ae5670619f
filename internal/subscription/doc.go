// Package subscription keeps track of which live connections are watching
// which entities and delivers state changes to them.
//
// Two record kinds are maintained in one keyed store:
//
//	subscription#<entityID>     -> Subscription{EntityID, Subscribers}
//	subscriber#<subscriberID>   -> SubscriberMap{SubscriberID, EntityID}
//
// The pair is written in two steps without a transaction, so every read
// path tolerates either side being missing. FanOut removes subscribers
// whose channel reports ErrGone.
package subscription
