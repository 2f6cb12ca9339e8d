/*
Package rrl implements ``Response Rate Limiting'' for authoritative DNS servers which
helps stop those servers being used as a vehicle for reflection/amplification attacks.

The rrl package is designed to be easy to use.
It consists of a configuration mechanism and a single public function to check limits
prior to sending each response.
That's it; that's the interface.

``Response Rate Limiting'' was originally devised by [ISC] and this implementation
follows the ISC algorithms: responses are accounted against an ``account'' identified
by the client network and the salient features of the response, and each account is a
small token bucket which earns credit once per second and is debited once per
response.

# Usage

The general pattern of use is to create a one-time [Limiter] with [New] using a
deployment-specific [Config], then call [Limiter.Check] prior to sending each response
back to a client.
[Limiter.Check] returns one of the following recommended verdicts: [OK], [Drop] or
[Slip].

While the meaning of [OK] and [Drop] are self-evident, [Slip] means to respond with a
truncated response so that genuine clients retry over TCP and still get an answer even
when their source network is being used as part of an amplification attack.

	cfg := rrl.NewConfig()
	cfg.SetValue("responses-per-second", "10") // Configure limits for our deployment
	R, err := rrl.New(cfg, time.Now())
	if err != nil { ... }

	for {
	    src, query := server.GetRequest()      // Accept a query
	    response := db.lookupResponse(query)   // Create the response

	    verdict := R.Check(src, isTCP, qClass, qType, qName, rCode, time.Now())

	    switch verdict {
	    case rrl.Drop:                         // Drop is easy, do nothing
	    case rrl.OK:
	        server.Send(response)              // No rate limit applies, ship it!
	    case rrl.Slip:
	        response.makeTruncatedIfAble()
	        server.Send(response)              // Client should retry over TCP
	    }
	}

Note that some error responses such as REFUSED and SERVFAIL cannot be replaced with
truncated responses thus the ``makeTruncatedIfAble'' function needs some intelligence.

Responses delivered over connection-oriented transports cannot be used for reflection
so [Limiter.Check] exempts them from response accounting and never creates an account
for them. Only the opt-in requests-per-second limit, which applies to every transport,
can return [Drop] for them.

# Accounts and categories

Each response is first classified by rcode into a [ResponseCategory]: [CategoryQuery]
for NOERROR, [CategoryNxDomain] for NXDOMAIN and [CategoryError] for everything else.
Each category has its own configurable per-second rate; a rate of zero disables
limiting for that category.

The account key combines the client network (the source address masked by the
configured prefix lengths, default 24 for ipv4 and 56 for ipv6), the category, the
query class and type, and - except for the error category - the owner name of the
response.
Error responses deliberately exclude the name so an attacker cannot diffuse an error
flood across arbitrary names.
For NXDOMAIN responses the caller is encouraged to supply the closest existing
encloser instead of the full query name; the key treats whatever name it is given
opaquely.

Accounts live in a bounded table which recycles its least recently used entries once
they have had the full penalty window to recover.
The table grows on demand from min-table-size toward max-table-size and never shrinks.

# Concurrency

A [Limiter] is safe for concurrent use by multiple goroutines: the account table,
entry balances and timestamp bases are guarded by a single mutex whose critical
section is a hash lookup plus token-bucket arithmetic.
Normally a single [Limiter] is shared amongst all goroutines across the application.
Multiple Limiters operate completely independently of each other, and operators
running multiple instances accept correspondingly looser global rates.

[Limiter.Check] performs no I/O, never blocks beyond its internal locks and always
returns.

# Hash seed

Account hashing is seeded per-instance from the construction time and process id.
This defends against trivially pre-crafted bucket collisions but is not
cryptographically strong, nor does it try to be.

# References

A good place to start on the background of RRL is the [ISC] introduction at
https://kb.isc.org/docs/aa-01000.

[ISC]: https://www.isc.org
*/
package rrl
