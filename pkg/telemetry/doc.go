// Package telemetry wires zerolog, Prometheus and OpenTelemetry for
// schemaprov processes.
//
// A process builds one Telemetry from a Config and shuts it down on exit:
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Logging: packages take a zerolog.Logger. Logger.Zerolog returns the
// process logger and Logger.Component tags one with a component field.
//
// Tracing: a run span per provisioning run, a child span per step and one
// per remote call. Exporters are otlp (gRPC), otlphttp, stdout and none.
// TraceID exposes the current trace so log lines can carry it. A nil *Tracer
// is valid and records nothing.
//
// Metrics live in a private registry served by Metrics.Handler:
//
//	schemaprov_runs_started_total{trigger}
//	schemaprov_runs_completed_total{status}
//	schemaprov_run_duration_seconds{status}
//	schemaprov_active_runs
//	schemaprov_step_outcomes_total{kind,status}
//	schemaprov_remote_calls_total{resource,outcome}
//	schemaprov_remote_call_duration_seconds{resource}
//
// A nil or disabled *Metrics accepts every Record call and does nothing.
package telemetry
