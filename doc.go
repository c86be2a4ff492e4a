/*
Package tcphttp is a small HTTP/1.1 server built directly on a TCP listener.

It accepts connections on the first IPv4 address of a host, reads each
request incrementally until the parser reports it complete, hands the parsed
request to a Handler and writes the returned bytes back before closing the
connection. One request is served per connection.

Features

  - Incremental parsing: every buffered prefix is classified as incomplete,
    malformed or complete, independently of how the bytes were chunked
  - One accept in flight at a time; sessions run concurrently
  - Optional limit on concurrently served connections
  - Read/write deadlines, request size limit and handler panic recovery
  - Graceful shutdown with a grace period
  - Structured logging with zerolog and per-outcome session statistics

Quick Start

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	application, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	application.Run()

A custom Handler can be served with the engine directly:

	engine := core.NewEngine(core.Options{Port: 8080}, core.HandlerFunc(func(req *http.Request) []byte {
		return http.OK().Body("text/plain", []byte(req.Path)).Bytes()
	}), zerolog.Nop())
	if err := engine.Run(ctx); err != nil {
		log.Fatal(err)
	}

Modules

  - app: Application lifecycle management
  - config: Configuration from defaults, JSON file, environment and flags
  - core: Listener, accept loop and connection sessions
  - core/http: Incremental request parser and response builder
  - core/pools: Read buffer pooling
  - core/observability: Session and handler statistics
  - logger: zerolog setup
  - site: Demo pages (greeting, GIF, server time)
  - cmd/tcphttp: Server binary
*/
package tcphttp
