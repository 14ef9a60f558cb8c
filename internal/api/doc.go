// Package api implements the doorgate admin HTTP server.
//
// It is read-only and meant for operators and monitoring:
//   - GET /api/v1/health         dependency health (database, MQTT, InfluxDB)
//   - GET /api/v1/metrics        Prometheus exposition
//   - GET /api/v1/stats          event totals and runtime statistics
//   - GET /api/v1/events/access  newest access events, ?door=&limit=
//   - GET /api/v1/events/system  newest system events, ?door=&limit=
//   - GET /api/v1/publishes      publish journal, ?kind=&result=&limit=&offset=
//
// Every response carries an X-Request-ID header. Handler panics are
// recovered and answered with a JSON 500.
package api
