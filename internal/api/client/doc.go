/*
Package client calls the memory manager HTTP API.

Requests go through a rate limiter and a circuit breaker; resty retries
transport failures and 429/503 responses. Error bodies are turned back
into the domain sentinels, so errors.Is(err, memory.ErrAllocFailed) works
on the client side. Only transport failures and 5xx faults other than
507 count against the breaker.

	c := client.New(client.DefaultConfig("http://localhost:8000"))
	b, err := c.Alloc(ctx, objects.NewBundle(kernel.RootCNodeSlot, 12, descs...))
*/
package client
