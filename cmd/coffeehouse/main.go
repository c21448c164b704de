// Coffeehouse CLI: run and talk to a multi-agent chat server from the
// terminal. Local mode needs no Postgres, no NATS, no Valkey.
package main

import "github.com/contenox/coffeehouse/internal/coffeecli"

func main() {
	coffeecli.Main()
}
