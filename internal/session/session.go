// Package session tracks gateway clients in Redis: which user is attached on
// which gateway instance, which contact they are talking to and the last
// observed connection state of that conversation.
package session
