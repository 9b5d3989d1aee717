// Package redis is the Redis pub/sub gateway transport, built on go-redis.
//
// Subscribe entries containing glob characters (*, ?, [) use PSUBSCRIBE;
// the rest use SUBSCRIBE. Inbound messages reach the gateway listener with
// the concrete channel as sub-data.
//
// The receive loop pings the server after health_interval seconds of
// silence (default 15) and reports the connection lost when the ping goes
// unanswered for another interval.
package redis
