/*
Package resilience provides the circuit breaker used by memory manager clients.

# Overview

A client that keeps calling an unreachable memory manager only piles up
timeouts. The breaker fails those calls fast once the remote looks down and
lets a few trial requests through after a cool-down.

Answers from a healthy server, such as alloc_failed, are not failures of
the transport; IsSuccessful lets callers keep those from tripping it.

# Usage

	breaker := resilience.New("memmgr", resilience.Settings{
		MaxRequests: 3,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || status.Code(err) != codes.Unavailable
		},
	})

	err := breaker.Execute(func() error {
		return conn.Invoke(ctx, method, req, resp)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
