// Package api serves provisioning runs over HTTP.
//
// Routes:
//
//	GET|POST /            run the catalog; body {"force_recreate": bool}
//	GET /healthz          liveness and run store health
//	GET /metrics          prometheus metrics
//	GET /plan             planned steps, ?format=dot for graphviz
//	GET /runs             recorded runs, ?limit and ?offset
//	GET /runs/{id}        one run with its steps
//	GET /runs/{id}/log    one run's execution log
//
// A run answers 200 with a SetupResponse or 500 with a FailureResponse.
// Other methods on / get 405. A request that arrives while a run is in
// flight gets 409. The API key comes from the x-appwrite-key header when
// present; the ClientFactory falls back to its configured key.
package api
