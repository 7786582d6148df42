// Package harness runs end-to-end scenarios against the HTTP API.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: user_roundtrip
//	description: "What this scenario validates"
//	backend: memory            # or sqlite (in-memory database)
//	dev: false
//	email_whitelist: []
//	steps:
//	  - name: create hal
//	    request:
//	      method: POST
//	      path: /users
//	      auth: { user: hal, password: p }
//	      body: { user_name: hal }
//	    expect:
//	      status: 201
//	      headers: { Location: /users/id-000001 }
//	      body: { user_name: hal }   # subset match on objects
//	      absent: [password]
//	assertions:
//	  - type: count
//	    class: User
//	    count: 1
//	  - type: document
//	    class: User
//	    id: id-000001
//	    expect: { user_type: human }
//
// # Deterministic Testing
//
// Every run gets a fresh backend, sequential identities (id-000001,
// id-000002, ... shared by all classes, consumed by failed creates too) and
// a clock that starts at 2024-01-01T00:00:00Z and advances one second per
// creation. Traces are therefore byte-identical across runs and are
// compared against golden files in testdata/golden.
//
// Run swaps the process-wide entity clock, so scenarios must not run in
// parallel.
package harness
